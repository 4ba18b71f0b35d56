package server

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the single structured logger threaded through the
// listener, connection driver, and store (SPEC_FULL.md §A). The returned
// zap.AtomicLevel is the same mutable handle backing the logger's level;
// callers that want to live-adjust verbosity (e.g. on a config file
// change) call SetLevel on it instead of rebuilding the logger.
func NewLogger(level, format string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), cfg.Level, nil
}
