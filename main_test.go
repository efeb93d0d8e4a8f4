package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger := newLogger("warn", "json")
	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
