// Package obslog provides the zap-based structured logger used by the ML
// serving core (internal/ml/...). The rest of the platform logs through
// internal/logging; the ML core predates that wrapper and keeps its own
// zap pipeline.
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the ML serving core. format is "json" or
// "console"; level is any zapcore.Level name ("debug", "info", "warn", ...).
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return cfg.Build()
}

// Must panics if New fails; used at process bootstrap where a broken logger
// configuration should halt startup immediately.
func Must(level, format string) *zap.Logger {
	logger, err := New(level, format)
	if err != nil {
		panic(err)
	}
	return logger
}

// ModelFields returns the zap fields every ML serving log line should carry.
func ModelFields(modelID, version string) []zap.Field {
	return []zap.Field{zap.String("model_id", modelID), zap.String("model_version", version)}
}
