package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/turnmark/internal/config"
	"github.com/raphaelgruber/turnmark/internal/db"
)

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SurrealStore)(nil)
)

// Open returns the backend selected by cfg.Store.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		return NewFileStore(cfg.DataDir, logger)
	case config.StoreSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		s, err := NewSurrealStore(ctx, client, logger)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
