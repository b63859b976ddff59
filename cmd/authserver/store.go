package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/auth/mongostore"
	"github.com/dmitrymomot/authkit/pkg/auth/pgstore"
	"github.com/dmitrymomot/authkit/pkg/config"
	"github.com/dmitrymomot/authkit/pkg/mongo"
	"github.com/dmitrymomot/authkit/pkg/pg"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverMongo    = "mongo"
)

// openStore connects the storage driver named by AUTH_STORE. The returned
// close func is nil for the memory driver.
func openStore(ctx context.Context, driver string, log *slog.Logger) (auth.Storage, func(context.Context) error, error) {
	switch driver {
	case driverMemory, "":
		log.Warn("using in-memory storage, data is lost on restart")
		return auth.NewMemoryStorage(), nil, nil

	case driverPostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to load postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.Open(ctx, pool, cfg, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func(context.Context) error {
			pool.Close()
			return nil
		}, nil

	case driverMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to load mongo config: %w", err)
		}
		db, err := mongo.ConnectDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := mongostore.Open(ctx, db)
		if err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		return store, db.Client().Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q: must be %q, %q or %q", driver, driverMemory, driverPostgres, driverMongo)
	}
}
