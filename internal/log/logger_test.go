package log

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"card-broker/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("Levels", func(t *testing.T) {
		logger, err := NewLogger(config.LoggingConfig{Level: "warn", Encoding: "json"})
		if err != nil {
			t.Fatalf("NewLogger returned error: %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("expected info to be filtered at warn level")
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("expected error level to be enabled")
		}
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := NewLogger(config.LoggingConfig{Level: "loud", Encoding: "console"}); err == nil {
			t.Fatalf("expected error for unknown level")
		}
	})

	t.Run("InvalidEncoding", func(t *testing.T) {
		if _, err := NewLogger(config.LoggingConfig{Level: "info", Encoding: "xml"}); err == nil {
			t.Fatalf("expected error for unknown encoding")
		}
	})
}
