package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{Level(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestSlogLogger_SetLevel(t *testing.T) {
	log := New(&Config{Level: InfoLevel, Format: "text", Output: "discard"})
	assert.Equal(t, InfoLevel, log.GetLevel())

	log.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, log.GetLevel())

	derived := log.With("component", "test")
	assert.Equal(t, DebugLevel, derived.GetLevel())
	log.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, derived.GetLevel())
}

func TestSlogLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "actiond.log")
	log := New(&Config{Level: WarnLevel, Format: "json", Output: logFile})

	log.Info("dropped")
	log.Warn("kept", "key", "value")
	require.NoError(t, log.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(content), "dropped"))
	assert.Contains(t, string(content), `"message":"kept"`)
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestSlogLogger_Close(t *testing.T) {
	t.Run("stdout has no closer", func(t *testing.T) {
		log := New(&Config{Output: "stdout"})
		assert.NoError(t, log.Close())
	})

	t.Run("derived logger does not own output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "derived.log")
		parent := New(&Config{Format: "json", Output: logFile})
		child := parent.With("component", "child")

		require.NoError(t, child.Close())
		parent.Info("still writable")
		require.NoError(t, parent.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "still writable")
	})

	t.Run("invalid path falls back to stdout", func(t *testing.T) {
		log := New(&Config{Output: "/nonexistent/path/to/file.log"}).(*SlogLogger)
		assert.Nil(t, log.closer)
	})
}

func TestFromContext(t *testing.T) {
	log := Discard()
	ctx := log.WithContext(context.Background())
	assert.Same(t, log, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()))
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	log := Discard()
	SetGlobal(log)
	assert.Same(t, log, Global())

	SetGlobal(nil)
	assert.Same(t, log, Global())

	// must not panic
	Debug("debug message", "key", "value")
	Info("info message")
	Warn("warn message")
	Error("error message")
}

func TestGetWriter(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "", "discard"} {
		_, closer := getWriter(output)
		assert.Nil(t, closer, output)
	}
}
