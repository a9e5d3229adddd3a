package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TURNMARK_CONFIG", "")
	t.Setenv("TURNMARK_STORE", "")
	t.Setenv("TURNMARK_DATA_DIR", "")
	t.Setenv("TURNMARK_LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turnmark.yaml")
	content := `
store: surrealdb
audio_root: /srv/audio
server_port: "9090"
surrealdb_namespace: labs
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TURNMARK_CONFIG", path)
	t.Setenv("TURNMARK_STORE", "")
	t.Setenv("TURNMARK_DATA_DIR", "")
	t.Setenv("TURNMARK_AUDIO_ROOT", "")
	t.Setenv("TURNMARK_LOG_LEVEL", "")
	t.Setenv("SURREALDB_NAMESPACE", "")
	t.Setenv("TURNMARK_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreSurrealDB, cfg.Store)
	assert.Equal(t, "/srv/audio", cfg.AudioRoot)
	assert.Equal(t, "labs", cfg.SurrealDBNamespace)
	assert.Equal(t, "7070", cfg.ServerPort, "env overrides file")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "annotations", cfg.DataDir, "unset keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("TURNMARK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0o600))
		t.Setenv("TURNMARK_CONFIG", path)
		_, err := Load()
		assert.ErrorContains(t, err, "parse")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("TURNMARK_CONFIG", "")
		t.Setenv("TURNMARK_STORE", "postgres")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown store")
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("commit applied", "inserted", 1)

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "commit applied")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &record))
	assert.Equal(t, "commit applied", record["msg"])
	assert.Equal(t, float64(1), record["inserted"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "turnmark.log")
	var stderr bytes.Buffer

	logger, cleanup := setupLogger(&stderr, path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
