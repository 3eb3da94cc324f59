package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		logger, err := newLogger(tt.level, false)
		if tt.wantErr {
			assert.Error(t, err, tt.level)
			continue
		}
		require.NoError(t, err, tt.level)
		assert.True(t, logger.Handler().Enabled(context.Background(), tt.want), tt.level)
		assert.False(t, logger.Handler().Enabled(context.Background(), tt.want-1), tt.level)
	}
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "schedule", "watch", "history"} {
		assert.Contains(t, names, want)
	}
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a;b", oneLine("a\nb"))
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, []rune(oneLine(string(long))), 80)
}
