package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})

	logger.Info("dropped")
	logger.Warn("kept", slog.String("ctx", "abc"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "learnhub-console", record["service"])
	assert.Equal(t, "abc", record["ctx"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: " DEBUG "}))
	assert.Equal(t, slog.LevelError, parseLevel(&Config{LogLevel: "error"}))
	assert.Equal(t, slog.LevelInfo, parseLevel(&Config{LogLevel: "verbose"}))
}

func TestStaticMimeTypes(t *testing.T) {
	assert.True(t, strings.HasPrefix(mime.TypeByExtension(".js"), "text/javascript") ||
		strings.HasPrefix(mime.TypeByExtension(".js"), "application/javascript"))
	assert.True(t, strings.HasPrefix(mime.TypeByExtension(".css"), "text/css"))
}
