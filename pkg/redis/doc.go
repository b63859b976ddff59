// Package redis connects to Redis with go-redis/v9.
//
// Config is read from REDIS_* environment variables. Connect retries the
// initial ping and Healthcheck wraps a ping for readiness probes. The
// authentication server uses the client for its shared rate limit buckets.
package redis
