package auth

import "time"

// MetricsRecorder receives authentication events. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	LoginAttempt(method, result string)
	SessionIssued(reason string)
	SessionRevoked(scope string)
	TokenValidated(result string)
	ProviderCall(provider, operation string, elapsed time.Duration, err error)
}

// Event labels.
const (
	ResultSuccess = "success"

	ReasonLogin = "login"
	ReasonRenew = "renew"

	ScopeClient = "client"
	ScopeAll    = "all"
)

// ResultOf labels err for metrics: "success" or the error's Kind.
func ResultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return KindOf(err).String()
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) LoginAttempt(string, string) {}
func (NoopMetrics) SessionIssued(string) {}
func (NoopMetrics) SessionRevoked(string) {}
func (NoopMetrics) TokenValidated(string) {}
func (NoopMetrics) ProviderCall(string, string, time.Duration, error) {}
