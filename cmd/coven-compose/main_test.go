// ABOUTME: Tests for CLI config resolution and output helpers
// ABOUTME: Flags override the config file; a missing default config falls back to defaults

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Helper()
	configPath, baseURL, dbPath, logLevel = "", "", "", ""
	t.Cleanup(func() { configPath, baseURL, dbPath, logLevel = "", "", "", "" })
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "compose.yaml")
	require.NoError(t, os.WriteFile(path, []byte("preview:\n  max_length: 280\n"), 0644))

	configPath = path
	baseURL = "http://localhost:8080"
	dbPath = "/tmp/compose.db"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, "/tmp/compose.db", cfg.Database.Path)
	assert.Equal(t, 280, cfg.Preview.MaxLength)
}

func TestLoadConfig_NoFileNeedsBaseURL(t *testing.T) {
	resetFlags(t)
	t.Setenv("COVEN_COMPOSE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := loadConfig()
	assert.Error(t, err)

	baseURL = "https://compose.example.com"
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://compose.example.com", cfg.Server.BaseURL)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	resetFlags(t)
	configPath = filepath.Join(t.TempDir(), "nope.yaml")
	baseURL = "https://compose.example.com"

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Make it...", truncate("Make it punchier", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld!", 10))
}
