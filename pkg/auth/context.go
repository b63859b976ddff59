package auth

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/authkit/pkg/logger"
)

type contextKey struct{ name string }

var (
	userContextKey     = &contextKey{name: "auth_user"}
	clientIDContextKey = &contextKey{name: "auth_client_id"}
)

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user attached by Middleware.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok && user != nil
}

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}

// ClientIDFromContext returns the calling client id, or "".
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// ClientIDLogExtractor adds the client id to log records.
func ClientIDLogExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := ClientIDFromContext(ctx); id != "" {
			return logger.ClientID(id), true
		}
		return slog.Attr{}, false
	}
}
