package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// CompanyKey is the context key for the company a request acts on
	CompanyKey ContextKey = "company_id"
	// JobKey is the context key for the extraction job being orchestrated
	JobKey ContextKey = "job_id"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w.
func New(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init initializes the global slog logger with the given configuration
// and returns it so it can be handed to components.
func Init(cfg *Config) *slog.Logger {
	l := New(cfg, os.Stdout)
	slog.SetDefault(l)
	return l
}

// WithCompany stores the company id in ctx.
func WithCompany(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, CompanyKey, companyID)
}

// WithJob stores the extraction job id in ctx.
func WithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobKey, jobID)
}

// Enrich adds the context values known to this package to l.
func Enrich(ctx context.Context, l *slog.Logger) *slog.Logger {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		l = l.With("request_id", requestID)
	}
	if company, ok := ctx.Value(CompanyKey).(string); ok && company != "" {
		l = l.With("company_id", company)
	}
	if job, ok := ctx.Value(JobKey).(string); ok && job != "" {
		l = l.With("job_id", job)
	}
	return l
}

// WithContext returns the default logger with context values extracted
func WithContext(ctx context.Context) *slog.Logger {
	return Enrich(ctx, slog.Default())
}

// Info logs at info level with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Debug logs at debug level with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// Warn logs at warn level with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Error logs at error level with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
