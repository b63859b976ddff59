package ratelimiter

import (
	"context"
	"time"
)

// Result describes the bucket after a request.
type Result struct {
	Limit     int
	Remaining int // negative when the request was denied
	ResetAt   time.Time
}

func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Config is a token bucket: Capacity tokens, RefillRate of them returned
// every RefillInterval.
type Config struct {
	Capacity       int
	RefillRate     int
	RefillInterval time.Duration
}

// PerWindow allows maxRequests per window, refilled in one step.
func PerWindow(maxRequests int, window time.Duration) Config {
	return Config{Capacity: maxRequests, RefillRate: maxRequests, RefillInterval: window}
}

// Store keeps bucket state. Denied requests must not consume tokens.
type Store interface {
	// ConsumeTokens takes n tokens from key's bucket. A negative remaining
	// means the bucket did not hold n tokens and nothing was taken.
	ConsumeTokens(ctx context.Context, key string, n int, cfg Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
