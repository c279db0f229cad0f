package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/toreca-arbitrage/internal/config"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
)

// OpenSnapshotStore returns the snapshot store selected by SNAPSHOT_BACKEND
// and a func releasing its resources. The postgres backend has its schema
// prepared before it is returned.
func OpenSnapshotStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.SnapshotStore, func(), error) {
	if cfg.Storage.Backend != config.BackendPostgres {
		fs, err := storage.NewFileStore(cfg.Storage.SnapshotDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}

	var (
		db  *DB
		err error
	)
	if cfg.Database.URL != "" {
		db, err = NewFromURL(ctx, cfg.Database.URL)
	} else {
		db, err = New(ctx, Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: int32(cfg.Database.MaxConns),
		})
	}
	if err != nil {
		return nil, nil, err
	}

	repo := NewSnapshotRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to prepare schema: %w", err)
	}

	return repo, db.Close, nil
}
