// Package cli implements the interactive terminal client: a small REPL over
// the vault session engine.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/ivlasov/passvault/internal/client/cache"
	"github.com/ivlasov/passvault/internal/client/config"
	"github.com/ivlasov/passvault/internal/client/engine"
	"github.com/ivlasov/passvault/internal/client/index"
	"github.com/ivlasov/passvault/internal/client/keystore"
	"github.com/ivlasov/passvault/internal/client/remote"
	"github.com/ivlasov/passvault/internal/logging"
)

type App struct {
	config *config.Config
	engine *engine.Engine
	db     *sql.DB
	reader *bufio.Reader
	logger logging.Logger
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	vaultCache, db, err := cache.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	store := remote.NewHTTPStore(c.ServerURL, c.RequestTimeout)
	keys := keystore.NewKeyringStore("passvault", c.KeyringDir, func(prompt string) (string, error) {
		pw, err := GetPassword(os.Stderr, prompt+": ")
		return string(pw), err
	})

	eng := engine.New(engine.Options{
		Store:    store,
		Cache:    vaultCache,
		Keys:     keys,
		Sink:     index.NewLogSink(logger),
		Logger:   logger,
		Username: c.Username,
	})

	return &App{
		config: c,
		engine: eng,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		logger: logger,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()
	a.Root(ctx)
}

func (a *App) isUnlocked() bool {
	return a.engine.Unlocked()
}
