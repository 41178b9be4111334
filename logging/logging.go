// Package logging builds the zap loggers used by the agentloop binaries.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour.
type Options struct {
	// Level is a zap level name such as "debug" or "warn". Empty means info.
	Level string
	// Development switches to the human-readable console encoder with
	// stack traces on warnings.
	Development bool
	// Encoding overrides the encoder, "json" or "console".
	Encoding string
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	switch opts.Encoding {
	case "":
	case "json", "console":
		cfg.Encoding = opts.Encoding
	default:
		return nil, fmt.Errorf("log encoding: unknown encoding %q", opts.Encoding)
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Must is New for program start-up, falling back to a no-op logger.
func Must(opts Options) *zap.Logger {
	logger, err := New(opts)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
