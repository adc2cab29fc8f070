// Package logging builds the zap loggers used across the pipeline.
// Loggers are passed explicitly through constructors; the only
// package-level value is a no-op logger for callers that opt out.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a logger at the named level. jsonFormat switches from
// the human console encoding to structured JSON lines for machine
// consumption.
func New(level string, jsonFormat bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if jsonFormat {
		cfg.Encoding = "json"
	}
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// Nop returns a logger that discards everything. Handy as a constructor
// default and in tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
