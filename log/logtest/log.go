package logtest

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

const testLogLevel = "TEST_LOG_LEVEL"

// New creates a zap logger that will use testing.TB.Log internally.
// Without TEST_LOG_LEVEL set it only reports errors.
func New(tb testing.TB, override ...zapcore.Level) *zap.Logger {
	level := zapcore.ErrorLevel
	if len(override) > 0 {
		level = override[0]
	} else if lvl := os.Getenv(testLogLevel); len(lvl) != 0 {
		if err := level.Set(lvl); err != nil {
			panic(err)
		}
	}
	return zaptest.NewLogger(tb, zaptest.Level(level))
}
