package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnTengye/contractledger/model"
)

type fakeApps struct {
	apps []*model.App
	err  error

	gotCategory string
	gotCompany  string
	gotApp      string
	gotSelect   model.SelectAppInput
}

func (f *fakeApps) ListApps(_ context.Context, category string) ([]*model.App, error) {
	f.gotCategory = category
	return f.apps, f.err
}

func (f *fakeApps) ListCompanyApps(_ context.Context, companyID string) ([]*model.App, error) {
	f.gotCompany = companyID
	return f.apps, f.err
}

func (f *fakeApps) SelectApp(_ context.Context, in model.SelectAppInput) error {
	f.gotSelect = in
	return f.err
}

func (f *fakeApps) UnselectApp(_ context.Context, companyID, appID string) error {
	f.gotCompany, f.gotApp = companyID, appID
	return f.err
}

func TestAppHandlerList(t *testing.T) {
	apps := &fakeApps{apps: []*model.App{
		{ID: "app-1", Name: "Slack", Category: model.CategoryProductivity, IsPredefined: true},
	}}
	router := setupRouter(&fakeContracts{}, fakeExporter{}, apps)

	req := httptest.NewRequest("GET", "/api/apps?category=Productivity+%26+Collaboration", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if apps.gotCategory != model.CategoryProductivity {
		t.Errorf("Expected category '%s', got '%s'", model.CategoryProductivity, apps.gotCategory)
	}
	list := decodeBody(t, w)["apps"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["name"] != "Slack" {
		t.Errorf("Unexpected apps %v", list)
	}
}

func TestAppHandlerListUnknownCategory(t *testing.T) {
	apps := &fakeApps{err: &model.ValidationError{Field: "category", Reason: "unknown category"}}
	router := setupRouter(&fakeContracts{}, fakeExporter{}, apps)

	req := httptest.NewRequest("GET", "/api/apps?category=Games", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if got := decodeBody(t, w)["field"]; got != "category" {
		t.Errorf("Expected field 'category', got %v", got)
	}
}

func TestAppHandlerListCompany(t *testing.T) {
	apps := &fakeApps{apps: []*model.App{{ID: "app-1", Name: "Slack"}}}
	router := setupRouter(&fakeContracts{}, fakeExporter{}, apps)

	req := httptest.NewRequest("GET", "/api/companies/co-1/apps", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if apps.gotCompany != "co-1" {
		t.Errorf("Expected company 'co-1', got '%s'", apps.gotCompany)
	}
}

func TestAppHandlerSelect(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		expected int
	}{
		{name: "selected", body: `{"company_id":"co-1","app_id":"app-1"}`, expected: http.StatusOK},
		{name: "invalid json", body: `not json`, expected: http.StatusBadRequest},
		{name: "unknown app", body: `{"company_id":"co-1","app_id":"nope"}`, err: &model.NotFoundError{Resource: "app", ID: "nope"}, expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps := &fakeApps{err: tt.err}
			router := setupRouter(&fakeContracts{}, fakeExporter{}, apps)

			req := httptest.NewRequest("POST", "/api/apps/select", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestAppHandlerUnselect(t *testing.T) {
	apps := &fakeApps{}
	router := setupRouter(&fakeContracts{}, fakeExporter{}, apps)

	req := httptest.NewRequest("DELETE", "/api/apps/select/co-1/app-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if apps.gotCompany != "co-1" || apps.gotApp != "app-1" {
		t.Errorf("Expected co-1/app-1, got %s/%s", apps.gotCompany, apps.gotApp)
	}
}
