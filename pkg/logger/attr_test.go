package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestIdentityAttrs(t *testing.T) {
	t.Parallel()

	t.Run("user id", func(t *testing.T) {
		attr := logger.UserID("123")
		require.Equal(t, "user_id", attr.Key)
		assert.Equal(t, "123", attr.Value.Any())
		assert.True(t, logger.UserID(nil).Equal(slog.Attr{}))
	})

	t.Run("client id", func(t *testing.T) {
		attr := logger.ClientID("web")
		require.Equal(t, "client_id", attr.Key)
		assert.Equal(t, "web", attr.Value.String())
		assert.True(t, logger.ClientID("").Equal(slog.Attr{}))
	})

	t.Run("provider and method", func(t *testing.T) {
		assert.Equal(t, "provider", logger.Provider("google").Key)
		assert.Equal(t, "auth_method", logger.Method("local").Key)
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	attr := logger.RequestID("abc")
	require.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "abc", attr.Value.Any())
}

func TestDuration(t *testing.T) {
	t.Parallel()
	attr := logger.Duration(2 * time.Second)
	require.Equal(t, "duration", attr.Key)
	assert.Equal(t, 2*time.Second, attr.Value.Duration())
}
