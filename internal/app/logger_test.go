package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger(&Config{LogLevel: "debug"})
	require.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = NewLogger(&Config{LogLevel: "warn"})
	require.False(t, logger.Enabled(ctx, slog.LevelInfo))
	require.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = NewLogger(&Config{LogLevel: "error"})
	require.False(t, logger.Enabled(ctx, slog.LevelWarn))
	require.True(t, logger.Enabled(ctx, slog.LevelError))
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []*Config{nil, {}, {LogLevel: "verbose"}} {
		logger := NewLogger(cfg)
		require.False(t, logger.Enabled(ctx, slog.LevelDebug))
		require.True(t, logger.Enabled(ctx, slog.LevelInfo))
	}
}
