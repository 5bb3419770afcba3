package main

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Console encoding unless cfg.JSON;
// verbose forces debug level. Every entry carries the run id.
func NewLogger(cfg LoggingConfig, verbose bool) (*zap.Logger, string, error) {
	config := zap.NewProductionConfig()
	if !cfg.JSON {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse log level %q: %w", cfg.Level, err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize logger: %w", err)
	}

	runID := uuid.NewString()
	return logger.With(zap.String("run_id", runID)), runID, nil
}
