// Package logging provides structured logging with trace ID propagation for
// every ambient component outside the ML serving core (which logs through
// internal/obslog instead).
package logging

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context values carried into log entries.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	WorkerKey  ContextKey = "worker_id"
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with trace-aware helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger for service, with level and format ("json" or "text").
func New(service, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a Logger from the given level and format, defaulting
// empty values to info/json. It does not read LOG_LEVEL/LOG_FORMAT itself;
// the caller passes the values it loaded.
func NewFromEnv(service, level, format string) *Logger {
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry pre-populated with trace/worker/service fields
// pulled from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if workerID := ctx.Value(WorkerKey); workerID != nil {
		entry = entry.WithField("worker_id", workerID)
	}
	return entry
}

// NewTraceID generates a new trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceID retrieves the trace id from ctx, or "" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithWorkerID returns a context carrying the worker identity.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, WorkerKey, workerID)
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, dur time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": status,
		"duration_ms": dur.Milliseconds(),
	}).Info("http request")
}

// LogQuery logs a repository query, warning when it crosses the slow
// threshold so operators can spot regressions without tracing infrastructure.
func (l *Logger) LogQuery(ctx context.Context, name string, dur time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query":       name,
		"duration_ms": dur.Milliseconds(),
	})
	switch {
	case err != nil:
		entry.WithError(err).Error("query failed")
	case dur > 100*time.Millisecond:
		entry.Warn("slow query")
	default:
		entry.Debug("query executed")
	}
}

// LogEvent logs a domain event being published on the bus.
func (l *Logger) LogEvent(ctx context.Context, eventType string, fields map[string]interface{}) {
	f := logrus.Fields{"event_type": eventType}
	for k, v := range fields {
		f[k] = v
	}
	l.WithContext(ctx).WithFields(f).Info("event published")
}

// LogAudit logs an audit trail entry for a mutating operation.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit")
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level logger, constructing a fallback one if
// InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("aerosuite", "info", "json")
	}
	return defaultLogger
}
