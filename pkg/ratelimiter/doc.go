// Package ratelimiter implements token bucket rate limiting for HTTP
// handlers.
//
// A Limiter applies a Config to a key using a Store. MemoryStore keeps
// buckets in process; RedisStore runs the refill-and-consume step as a Lua
// script so that several instances share one budget. Denied requests do not
// consume tokens.
//
// The bucket configuration is passed on every call, which lets the
// middleware follow settings that change at runtime:
//
//	limiter := ratelimiter.New(ratelimiter.NewRedisStore(client, "rl:"))
//	mw := ratelimiter.Middleware(limiter,
//		func(r *http.Request) (ratelimiter.Config, bool) {
//			rl := registry.Snapshot().RateLimit()
//			return ratelimiter.PerWindow(rl.MaxRequests, rl.Window.Std()), rl.Enabled()
//		},
//		ratelimiter.Composite(ratelimiter.Static("auth"), clientip.KeyFunc),
//	)
//
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected ones also carry Retry-After.
package ratelimiter
