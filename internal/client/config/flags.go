package config

import (
	"flag"
	"os"
	"time"

	"github.com/ivlasov/passvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend server (default from Config)
//	-u string   account username
//	-d string   SQLite DSN of the local cache database
//	-k string   directory for the file keyring backend
//	-t int      request timeout in seconds (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-u", "-d", "-k", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the backend server")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "account username")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local cache database DSN")
	fs.StringVar(&cfg.KeyringDir, "k", cfg.KeyringDir, "file keyring directory")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
