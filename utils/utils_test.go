package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvFallsBackOnBlank(t *testing.T) {
	t.Setenv("SER_TEST_BLANK", "   ")
	t.Setenv("SER_TEST_SET", "value")

	assert.Equal(t, "fallback", GetEnv("SER_TEST_BLANK", "fallback"))
	assert.Equal(t, "value", GetEnv("SER_TEST_SET", "fallback"))
	assert.Equal(t, "fallback", GetEnv("SER_TEST_MISSING_KEY", "fallback"))
}

func TestNewLoggerJSONLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "warn")

	logger.Info("dropped")
	logger.Warn("kept", slog.String("stage", "decode"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "decode", entry["stage"])
}

func TestNewLoggerText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewLogger(&buf, "TEXT", "debug").Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestCreateFolderNested(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, CreateFolder(dir))
	require.NoError(t, CreateFolder(dir))
	assert.DirExists(t, dir)
}
