package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/pkg/logger"
)

func TestCompanyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CompanyScope())
	handler := func(c *gin.Context) {
		fromCtx, _ := c.Request.Context().Value(logger.CompanyKey).(string)
		c.JSON(http.StatusOK, gin.H{"company": GetCompanyID(c), "ctx": fromCtx})
	}
	router.GET("/companies/:company_id/apps", handler)
	router.GET("/contracts/:id", handler)

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"path parameter", "/companies/co-1/apps", `{"company":"co-1","ctx":"co-1"}`},
		{"query parameter", "/contracts/c-1?company_id=co-2", `{"company":"co-2","ctx":"co-2"}`},
		{"no company", "/contracts/c-1", `{"company":"","ctx":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Body.String() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, w.Body.String())
			}
		})
	}
}
