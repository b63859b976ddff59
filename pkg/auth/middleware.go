package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrymomot/authkit/pkg/jwt"
)

// Header and query names carrying the calling client id.
const (
	ClientIDHeader     = "clientid"
	ClientIDQueryParam = "client_id"
)

// TokenValidator is the read path of the SessionManager.
type TokenValidator interface {
	Validate(ctx context.Context, bearer, clientID string) (*User, error)
}

// ErrorHandlerFunc renders a rejected request.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

type middlewareConfig struct {
	extractor    jwt.TokenExtractorFunc
	errorHandler ErrorHandlerFunc
}

type MiddlewareOption func(*middlewareConfig)

// WithTokenExtractor overrides the default bearer header extraction.
func WithTokenExtractor(fn jwt.TokenExtractorFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.extractor = fn
		}
	}
}

// WithUnauthorizedHandler overrides the default plain-text 401 response.
func WithUnauthorizedHandler(fn ErrorHandlerFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.errorHandler = fn
		}
	}
}

// Middleware requires a valid bearer token for the client established by
// ClientID. Missing or malformed headers are rejected without a store lookup;
// every failure short-circuits with 401. It never writes to storage.
func Middleware(v TokenValidator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		extractor: jwt.BearerTokenExtractor,
		errorHandler: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, err := cfg.extractor(r)
			if err != nil || bearer == "" {
				cfg.errorHandler(w, r, ErrUnauthorized)
				return
			}

			ctx := r.Context()
			user, err := v.Validate(ctx, bearer, ClientIDFromContext(ctx))
			if err != nil {
				cfg.errorHandler(w, r, ErrUnauthorized)
				return
			}

			ctx = jwt.SetToken(ctx, bearer)
			ctx = WithUser(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientID stores the client id from the clientid header, or the client_id
// query parameter for browser redirects, in the request context.
func ClientID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ClientIDHeader))
		if id == "" {
			id = strings.TrimSpace(r.URL.Query().Get(ClientIDQueryParam))
		}
		if id != "" {
			r = r.WithContext(WithClientID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
