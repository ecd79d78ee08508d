package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"debug level text", &Config{Level: "debug", Format: "text"}},
		{"info level json", &Config{Level: "info", Format: "json"}},
		{"warn level text", &Config{Level: "warn", Format: "text"}},
		{"error level json", &Config{Level: "error", Format: "json"}},
		{"default level", &Config{Level: "invalid", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Init(tt.config)
			if l == nil {
				t.Fatal("Expected non-nil logger")
			}
			slog.Info("test message")
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("Expected %v for %q, got %v", want, name, got)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json"}, &buf)
	l.Debug("hidden")
	l.Info("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected debug message to be filtered")
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("Expected JSON attrs, got %s", out)
	}
}

func TestEnrich(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "text"}, &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithCompany(ctx, "company-9")
	ctx = WithJob(ctx, "job-7")

	Enrich(ctx, base).Info("enriched")

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "company_id=company-9", "job_id=job-7"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %s", want, out)
		}
	}
}

func TestWithContextEmpty(t *testing.T) {
	Init(&Config{Level: "info", Format: "text"})

	logger := WithContext(context.Background())
	if logger == nil {
		t.Error("Expected non-nil logger")
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")

	Info(ctx, "info message", "key", "value")
	if !strings.Contains(buf.String(), "info message") {
		t.Error("Expected info message in log")
	}

	buf.Reset()
	Debug(ctx, "debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Error("Expected debug message in log")
	}

	buf.Reset()
	Warn(ctx, "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("Expected warn message in log")
	}

	buf.Reset()
	Error(ctx, "error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Error("Expected error message in log")
	}
}
