package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "passvault.db", c.DatabaseDSN)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"server_url":      "https://vault.example.com",
		"username":        "alice",
		"database_dsn":    "other.db",
		"keyring_dir":     "/tmp/ring",
		"request_timeout": "15s",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "https://vault.example.com", cfg.ServerURL)
		assert.Equal(t, "alice", cfg.Username)
		assert.Equal(t, "other.db", cfg.DatabaseDSN)
		assert.Equal(t, "/tmp/ring", cfg.KeyringDir)
		assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	})

	t.Run("no config flag leaves values untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ServerURL: "defaults:1234", RequestTimeout: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.ServerURL)
		assert.Equal(t, 42*time.Second, cfg.RequestTimeout)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name        string
		args        []string
		expectPanic bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-a", "https://vault.example.com", "-u", "bob", "-d", "x.db", "-t", "20"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://vault.example.com", cfg.ServerURL)
				assert.Equal(t, "bob", cfg.Username)
				assert.Equal(t, "x.db", cfg.DatabaseDSN)
				assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
			},
		},
		{
			name:        "invalid timeout",
			args:        []string{"cmd", "-t", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			cfg := &Config{}
			cfg.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg) })
				return
			}
			require.NotPanics(t, func() { parseFlags(cfg) })
			tt.check(t, cfg)
		})
	}
}
