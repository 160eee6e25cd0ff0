// Package log provides zap logger construction and field helpers shared by
// gluon components.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ConsoleEncoder writes human readable logs.
	ConsoleEncoder = "console"
	// JSONEncoder writes one JSON object per entry.
	JSONEncoder = "json"
)

// Config for the process logger.
type Config struct {
	Level   string `mapstructure:"log-level"`
	Encoder string `mapstructure:"log-encoder"`
}

// DefaultConfig logs at info level to the console.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Encoder: ConsoleEncoder,
	}
}

// New builds a logger that writes to stderr.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.Sampling = nil
	zcfg.DisableStacktrace = true
	switch cfg.Encoder {
	case ConsoleEncoder, "":
		zcfg.Encoding = ConsoleEncoder
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case JSONEncoder:
		zcfg.Encoding = JSONEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log encoder %q", cfg.Encoder)
	}
	return zcfg.Build()
}
