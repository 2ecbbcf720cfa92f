package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratadb.log")
	log, err := New(Config{Level: "warn", OutputFile: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "kept", entry["msg"])
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "stratadb", entry["service"])
}

func TestMultipleOutputs(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	log, err := New(Config{Format: "console", OutputFile: a + ", " + b})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Sync())

	for _, path := range []string{a, b} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "hello")
		require.Contains(t, string(data), "INFO")
	}
}

func TestSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampled.log")
	log, err := New(Config{OutputFile: path, SampleInitial: 2, SampleThereafter: 1000})
	require.NoError(t, err)
	for range 10 {
		log.Info("repeated")
	}
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(data), "repeated"))
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	_, err = New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}
