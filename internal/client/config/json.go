package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ivlasov/passvault/internal/flagx"
	"github.com/ivlasov/passvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify the timeout either as
// a string like "10s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	Username       string         `json:"username"`
	DatabaseDSN    string         `json:"database_dsn"`
	KeyringDir     string         `json:"keyring_dir"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent nothing is loaded.
// Read or unmarshal errors panic, matching the fail-fast startup contract.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.Username = jc.Username
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.KeyringDir = jc.KeyringDir
	cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
}
