package ratelimiter_test

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
)

// Set REDIS_URL to run against a real server.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	l := ratelimiter.New(ratelimiter.NewRedisStore(client, "authkit-test:"))
	ctx := t.Context()
	key := uuid.NewString()
	cfg := ratelimiter.PerWindow(2, time.Minute)

	for i := range 2 {
		res, err := l.Allow(ctx, key, cfg)
		require.NoError(t, err)
		assert.Equal(t, 1-i, res.Remaining)
	}
	res, err := l.Allow(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	require.NoError(t, l.Reset(ctx, key))
	res, err = l.Allow(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}
