package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tcs := []struct {
		in   string
		eout zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.eout, ParseLevel(tc.in), "ParseLevel(%q)", tc.in)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	l := New(Config{Level: "warn", Format: "json"})
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l := New(Config{})
	require.Same(t, l, OrNop(l))
}
