package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/inflation-map/internal/config"
)

func TestNewLogger_JSONByDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "json"})

	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok)
	assert.Same(t, logger, slog.Default())
}

func TestNewLogger_Text(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "TEXT"})

	_, ok := logger.Handler().(*slog.TextHandler)
	assert.True(t, ok)
}

func TestNewLogger_LevelFilters(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	ctx := context.Background()

	tests := []struct {
		level   string
		enabled slog.Level
		dropped slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: "json"})
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.dropped))
		})
	}
}
