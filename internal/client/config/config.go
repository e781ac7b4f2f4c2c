package config

import "time"

// Config holds runtime settings for the PassVault CLI.
//
// Fields:
//   - ServerURL: base URL of the backend HTTP API.
//   - Username: account name used for register/login and key-info lookup.
//   - DatabaseDSN: SQLite DSN of the local encrypted vault cache.
//   - KeyringDir: directory of the encrypted-file keyring fallback backend.
//   - RequestTimeout: per-request deadline for remote calls.
type Config struct {
	ServerURL      string
	Username       string
	DatabaseDSN    string
	KeyringDir     string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Username = ""
	c.DatabaseDSN = "passvault.db"
	c.KeyringDir = ".passvault-keyring"
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
