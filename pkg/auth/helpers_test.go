package auth

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const testSecret = "test-jwt-secret-with-enough-entropy"

// captureMailer records links instead of sending email.
type captureMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	err          error
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{verification: map[string]string{}, reset: map[string]string{}}
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verification[to] = link
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reset[to] = link
	return nil
}

func (m *captureMailer) verificationToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.verification[email]
	require.True(t, ok, "no verification email for %s", email)
	idx := strings.LastIndex(link, "/")
	return link[idx+1:]
}

func (m *captureMailer) resetToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.reset[email]
	require.True(t, ok, "no reset email for %s", email)
	_, value, found := strings.Cut(link, "token=")
	require.True(t, found)
	return value
}

func testSettings() Settings {
	return Settings{
		Local: LocalSettings{
			Enabled:              true,
			VerificationRequired: true,
			MinPasswordLength:    3,
		},
		JWTSecret:        testSecret,
		BaseURL:          "https://auth.example.com",
		ResetPasswordURL: "https://app.example.com/reset",
	}
}

type testEnv struct {
	store    *MemoryStorage
	registry *Registry
	mailer   *captureMailer
	svc      *Service
}

func newTestEnv(t *testing.T, settings Settings, opts ...RegistryOption) *testEnv {
	t.Helper()

	mailer := newCaptureMailer()
	registry, err := NewRegistry(settings, append([]RegistryOption{WithMailer(mailer)}, opts...)...)
	require.NoError(t, err)

	store := NewMemoryStorage()
	return &testEnv{
		store:    store,
		registry: registry,
		mailer:   mailer,
		svc:      NewService(store, registry, WithHasher(NewBcryptHasher(bcrypt.MinCost))),
	}
}

// stubProviderServer serves the token and profile endpoints of a fake provider.
// Valid access token: "good-token"; valid code: "good-code".
func stubProviderServer(t *testing.T, profile map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"good-token","token_type":"Bearer","refresh_token":"provider-refresh","expires_in":3600}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(profile)
		case "Bearer broken-token":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func stubProvider(srv *httptest.Server) Provider {
	return Provider{
		Name: "stub",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		ProfileURL: srv.URL + "/me",
		Normalize: func(raw map[string]any) (NormalizedProfile, error) {
			return NormalizedProfile{ID: stringField(raw, "id"), Email: stringField(raw, "email"), Raw: raw}, nil
		},
	}
}

func stubSettings(accountLinking bool) Settings {
	s := testSettings()
	s.Providers = map[string]ProviderSettings{
		"stub": {
			Enabled:        true,
			ClientID:       "stub-client",
			ClientSecret:   "stub-secret",
			RedirectURL:    "https://auth.example.com/hook/authentication/stub",
			AccountLinking: accountLinking,
		},
	}
	return s
}

func extractQuery(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	v := u.Query().Get(key)
	require.NotEmpty(t, v)
	return v
}

// countingMetrics records login attempts by method label.
type countingMetrics struct {
	NoopMetrics
	mu       sync.Mutex
	attempts map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{attempts: map[string]int{}}
}

func (m *countingMetrics) LoginAttempt(method, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[method]++
}

func (m *countingMetrics) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Keys(m.attempts))
}

func (m *countingMetrics) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[method]
}
