package pgstore_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/auth/pgstore"
	"github.com/dmitrymomot/authkit/pkg/auth/storetest"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/pg"
)

// Set PG_CONN_URL to run against a real database.
func TestStore_Contract(t *testing.T) {
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	cfg := pg.Config{
		ConnectionString: url,
		MaxConns:         8,
		RetryAttempts:    1,
		MigrationsTable:  "authkit_test_migrations",
	}
	pool, err := pg.Connect(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := pgstore.Open(t.Context(), pool, cfg, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, store.Ping(t.Context()))

	storetest.Run(t, func(*testing.T) auth.Storage { return store })
}
