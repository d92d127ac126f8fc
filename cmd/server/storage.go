package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/config"
	"github.com/iliyamo/scene-continuity/internal/database"
	"github.com/iliyamo/scene-continuity/internal/handler"
	"github.com/iliyamo/scene-continuity/internal/repository"
	"github.com/iliyamo/scene-continuity/internal/store"
	"github.com/iliyamo/scene-continuity/internal/store/memstore"
)

// backend is an opened store plus what the server needs to probe and close
// it.
type backend struct {
	store store.Store
	ping  handler.Pinger
	close func() error
}

// openBackend opens the store selected by DB_DRIVER.  SQL stores are
// migrated first when migrate is set.
func openBackend(ctx context.Context, cfg config.DBConfig, migrate bool, log *zap.Logger) (backend, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		return backend{
			store: memstore.New(),
			ping:  handler.PingFunc(func(context.Context) error { return nil }),
			close: func() error { return nil },
		}, nil
	}

	db, err := database.Open(database.Options{
		Driver:     cfg.Driver,
		User:       cfg.User,
		Pass:       cfg.Pass,
		Host:       cfg.Host,
		Port:       cfg.Port,
		Name:       cfg.Name,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return backend{}, fmt.Errorf("open database: %w", err)
	}
	if migrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			_ = db.Close()
			return backend{}, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("applied migrations", zap.Strings("versions", applied))
		}
	}
	return backend{store: repository.New(db), ping: db, close: db.Close}, nil
}
