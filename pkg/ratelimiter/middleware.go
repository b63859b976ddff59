package ratelimiter

import (
	"hash/fnv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/authkit/pkg/logger"
)

// Keys longer than this are hashed.
const maxKeyLength = 64

// KeyFunc derives the bucket key of a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ConfigFunc returns the bucket for a request, or false to skip limiting.
// It is consulted per request so that limits follow live settings.
type ConfigFunc func(r *http.Request) (Config, bool)

// Composite joins the non-empty keys of fns with ":", hashing long results
// with FNV-1a.
func Composite(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) <= maxKeyLength {
			return combined
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(combined))
		return strconv.FormatUint(h.Sum64(), 36)
	}
}

// Static returns a key that is the same for every request, useful for
// namespacing.
func Static(key string) KeyFunc {
	return func(*http.Request) string { return key }
}

type middlewareConfig struct {
	logger   *slog.Logger
	now      func() time.Time
	rejected http.HandlerFunc
	failOpen bool
}

type MiddlewareOption func(*middlewareConfig)

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRejectedHandler renders 429 responses. Rate limit headers are already set.
func WithRejectedHandler(h http.HandlerFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.rejected = h
		}
	}
}

// WithFailClosed rejects requests with 503 when the store errors. By default
// requests pass through and the error is logged.
func WithFailClosed() MiddlewareOption {
	return func(c *middlewareConfig) { c.failOpen = false }
}

// Middleware limits requests per key. Responses carry X-RateLimit-* headers
// and, when rejected, Retry-After.
func Middleware(l *Limiter, cfgFn ConfigFunc, keyFn KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := middlewareConfig{
		logger: logger.Noop(),
		now:    time.Now,
		rejected: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		},
		failOpen: true,
	}
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg, enabled := cfgFn(r)
			key := keyFn(r)
			if !enabled || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := l.Allow(r.Context(), key, cfg)
			if err != nil {
				mc.logger.ErrorContext(r.Context(), "rate limit check failed",
					logger.Error(err),
					logger.Component("ratelimiter"),
				)
				if mc.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed() {
				// Round up so that clients never retry early.
				retry := result.RetryAfter(mc.now())
				w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				mc.rejected(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
