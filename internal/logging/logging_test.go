package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level      string
		production bool
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{"info", true, zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", false, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{" WARN ", true, zapcore.WarnLevel, zapcore.InfoLevel},
		{"", true, zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		logger, err := New(tc.level, tc.production)
		require.NoError(t, err, "level=%q", tc.level)
		require.True(t, logger.Core().Enabled(tc.enabled), "level=%q", tc.level)
		require.False(t, logger.Core().Enabled(tc.disabled), "level=%q", tc.level)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("chatty", true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "logging:")
}
