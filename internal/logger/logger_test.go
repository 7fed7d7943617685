package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("WARN")
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
	})

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "[WARN]")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	SetLevel("ERROR")
	SetLevel("verbose")
	t.Cleanup(func() { SetLevel("INFO") })

	assert.Equal(t, LevelError, GetLevel())
}

func TestConfigureJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Configure(Config{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() {
		require.NoError(t, Configure(Config{Level: "INFO", Format: "text", Output: "stdout"}))
	})

	Debug("conn=%s accepted", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "conn=abc accepted", entry["message"])
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
