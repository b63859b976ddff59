package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/authkit/pkg/auth"
)

const namespace = "authkit"

var _ auth.MetricsRecorder = (*Recorder)(nil)

// Recorder exports authentication events as Prometheus metrics.
type Recorder struct {
	loginAttempts    *prometheus.CounterVec
	sessionsIssued   *prometheus.CounterVec
	sessionsRevoked  *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
// It panics if any collector is already registered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by method and result.",
		}, []string{"method", "result"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Token pairs issued, by reason (login, renew).",
		}, []string{"reason"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Revocations by scope (client, all).",
		}, []string{"scope"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Bearer token validations by result.",
		}, []string{"result"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Identity provider calls by provider, operation and result.",
		}, []string{"provider", "operation", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Identity provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		r.loginAttempts,
		r.sessionsIssued,
		r.sessionsRevoked,
		r.tokenValidations,
		r.providerCalls,
		r.providerLatency,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

func (r *Recorder) LoginAttempt(method, result string) {
	r.loginAttempts.WithLabelValues(method, result).Inc()
}

func (r *Recorder) SessionIssued(reason string) {
	r.sessionsIssued.WithLabelValues(reason).Inc()
}

func (r *Recorder) SessionRevoked(scope string) {
	r.sessionsRevoked.WithLabelValues(scope).Inc()
}

func (r *Recorder) TokenValidated(result string) {
	r.tokenValidations.WithLabelValues(result).Inc()
}

func (r *Recorder) ProviderCall(provider, operation string, elapsed time.Duration, err error) {
	r.providerCalls.WithLabelValues(provider, operation, auth.ResultOf(err)).Inc()
	r.providerLatency.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
