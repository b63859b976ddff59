// Package clientip resolves the caller's address behind reverse proxies.
//
// GetIP checks CF-Connecting-IP, DO-Connecting-IP, X-Forwarded-For and
// X-Real-IP before falling back to RemoteAddr. Invalid values are skipped.
// Only deploy behind a proxy that overwrites these headers; otherwise clients
// can choose their own address.
//
// Middleware stores the result in the request context and KeyFunc exposes it
// as a rate limit key.
package clientip
