package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func str(v string) *string   { return &v }

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

type testRepos struct {
	contracts   repository.ContractRepository
	services    repository.ServiceRepository
	companyApps repository.CompanyAppRepository
	apps        repository.AppRepository
}

func newTestRepos(t *testing.T) testRepos {
	db := newTestDB(t)
	log := discardLogger()
	return testRepos{
		contracts:   repository.NewContractRepository(db, log),
		services:    repository.NewServiceRepository(db, log),
		companyApps: repository.NewCompanyAppRepository(db, log),
		apps:        repository.NewAppRepository(db, log),
	}
}

func seedApp(t *testing.T, repos testRepos, id, name string) {
	t.Helper()
	err := repos.apps.Insert(context.Background(), &model.App{
		ID:        id,
		Name:      name,
		Category:  model.CategoryProductivity,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed app: %v", err)
	}
}

// memStore is an in-memory ObjectStore. Setting putErr or deleteErr makes
// the matching call fail.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	base      string
	putErr    error
	deleteErr error
	puts      int
	gets      int
}

func newMemStore(base string) *memStore {
	return &memStore{objects: make(map[string][]byte), base: base}
}

func (m *memStore) Put(_ context.Context, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[path] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[path]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memStore) Delete(_ context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

func (m *memStore) PublicURL(path string) string {
	return m.base + "/" + path
}

func (m *memStore) PresignedURL(_ context.Context, path string) (string, error) {
	return m.base + "/" + path + "?signed=1", nil
}

func (m *memStore) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// failingServices fails every InsertMany call.
type failingServices struct {
	repository.ServiceRepository
}

func (failingServices) InsertMany(context.Context, []*model.Service) error {
	return errors.New("disk full")
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []ContractEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e ContractEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

var pdfBytes = []byte("%PDF-1.7\nfake document body")
