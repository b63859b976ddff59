// Package metrics exports authentication and HTTP metrics to Prometheus.
//
// Recorder implements auth.MetricsRecorder and is passed to the auth
// service with auth.WithMetrics. Collectors are registered on the given
// Registerer, so tests use a fresh prometheus.NewRegistry.
package metrics
