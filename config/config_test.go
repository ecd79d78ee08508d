package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_DRIVER", "DATABASE_URL", "STORAGE_PROVIDER",
		"STORAGE_BUCKET", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "EXTRACTION_API_URL",
		"EXTRACTION_API_TOKEN", "REDIS_ADDRESS", "PUBSUB_PROJECT_ID", "PUBSUB_TOPIC",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
  allowed_origins: ["http://localhost:5173"]
log:
  level: "debug"
  format: "json"
database:
  driver: "postgres"
  dsn: "postgres://localhost/contracts"
  max_conns: 20
  statement_timeout: 5s
storage:
  provider: "minio"
  bucket: "contracts"
  expire_days: 14
  minio:
    endpoint: "localhost:9000"
    access_key: "minioadmin"
    secret_key: "minioadmin"
extraction:
  api_url: "https://extract.test"
  api_token: "test-token"
  poll_interval: 2s
  max_attempts: 30
redis:
  addr: "localhost:6379"
batch:
  workers: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Expected 1 allowed origin, got %d", len(cfg.Server.AllowedOrigins))
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected driver postgres, got %s", cfg.Database.Driver)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("Expected max_conns 20, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.StatementTimeout != 5*time.Second {
		t.Errorf("Expected statement_timeout 5s, got %s", cfg.Database.StatementTimeout)
	}
	if cfg.Storage.ExpireDays != 14 {
		t.Errorf("Expected expire_days 14, got %d", cfg.Storage.ExpireDays)
	}
	if cfg.Storage.Minio.Endpoint != "localhost:9000" {
		t.Errorf("Expected endpoint localhost:9000, got %s", cfg.Storage.Minio.Endpoint)
	}
	if cfg.Extraction.PollInterval != 2*time.Second {
		t.Errorf("Expected poll_interval 2s, got %s", cfg.Extraction.PollInterval)
	}
	if cfg.Extraction.MaxAttempts != 30 {
		t.Errorf("Expected max_attempts 30, got %d", cfg.Extraction.MaxAttempts)
	}
	if cfg.Batch.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Batch.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  bucket: "bucket"
  minio:
    endpoint: "localhost:9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.ExpireDays != 7 {
		t.Errorf("Expected default expire_days 7, got %d", cfg.Storage.ExpireDays)
	}
	if cfg.Extraction.ModelVersion != "vlm" {
		t.Errorf("Expected default model_version vlm, got %s", cfg.Extraction.ModelVersion)
	}
	if cfg.Extraction.PollInterval != time.Second {
		t.Errorf("Expected default poll interval 1s, got %s", cfg.Extraction.PollInterval)
	}
	if cfg.Extraction.MaxAttempts != 60 {
		t.Errorf("Expected default max attempts 60, got %d", cfg.Extraction.MaxAttempts)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
	if cfg.Normalizer.PhoneRegion != "US" {
		t.Errorf("Expected default phone region US, got %s", cfg.Normalizer.PhoneRegion)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/contracts")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("EXTRACTION_API_TOKEN", "from-env")
	t.Setenv("PORT", "7070")

	path := writeConfig(t, `
database:
  dsn: "file.db"
extraction:
  api_token: "from-file"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/contracts" {
		t.Errorf("Expected DSN from env, got %s", cfg.Database.DSN)
	}
	if cfg.Extraction.APIToken != "from-env" {
		t.Errorf("Expected token from env, got %s", cfg.Extraction.APIToken)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  driver: "oracle"
storage:
  provider: "minio"
pubsub:
  topic: "contracts"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"database.driver", "storage.bucket", "storage.minio.endpoint", "extraction.api_url", "pubsub.project_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
