package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseSlogLevel("debug", slog.LevelInfo))
	require.Equal(t, slog.LevelInfo, parseSlogLevel("INFO", slog.LevelError))
	require.Equal(t, slog.LevelWarn, parseSlogLevel("warning", slog.LevelInfo))
	require.Equal(t, slog.LevelError, parseSlogLevel("error", slog.LevelInfo))
	require.Equal(t, slog.Level(-4), parseSlogLevel("-4", slog.LevelInfo))
	require.Equal(t, slog.LevelInfo, parseSlogLevel("", slog.LevelInfo))
	require.Equal(t, slog.LevelWarn, parseSlogLevel("bogus", slog.LevelWarn))
}
