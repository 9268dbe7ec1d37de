package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "surge-api")
	l.Info("dropped")
	l.Warn("kept", "zone", "Z")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "surge-api", rec["service"])
	assert.Equal(t, "Z", rec["zone"])
	assert.Contains(t, rec, "source")
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, levelFromString(in).Level(), "level %q", in)
	}
}
