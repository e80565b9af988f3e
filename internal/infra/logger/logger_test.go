package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, false)
	l.Info().Msgf("hub started: addr=%s", ":8080")
	l.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, `"message":"hub started: addr=:8080"`)
	assert.NotContains(t, out, "hidden")
}

func TestShortCaller(t *testing.T) {
	file := filepath.Join("a", "b", "c", "hub.go")
	assert.Equal(t, filepath.Join("c", "hub.go")+":12", shortCaller(0, file, 12))
	assert.Equal(t, "hub.go:3", shortCaller(0, "hub.go", 3))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hub.log")
	closer, err := Init(Config{Output: "file", File: path, Level: "info"})
	require.NoError(t, err)
	defer func() {
		_ = closer.Close()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
