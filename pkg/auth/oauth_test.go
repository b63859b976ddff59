package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, payload string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))
	return raw
}

func TestBuiltinNormalizers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		normalize func(map[string]any) (NormalizedProfile, error)
		payload   string
		wantID    string
		wantEmail string
		wantErr   error
	}{
		{"google v3", normalizeGoogle, `{"sub":"g1","email":"a@example.com","email_verified":true}`, "g1", "a@example.com", nil},
		{"google v2", normalizeGoogle, `{"id":"g2","email":"b@example.com","verified_email":true}`, "g2", "b@example.com", nil},
		{"google unverified", normalizeGoogle, `{"sub":"g3","email":"c@example.com","email_verified":false}`, "g3", "", nil},
		{"facebook", normalizeFacebook, `{"id":"10001","email":"d@example.com"}`, "10001", "d@example.com", nil},
		{"github numeric id", normalizeGitHub, `{"id":583231,"email":null}`, "583231", "", nil},
		{"gitlab public email", normalizeGitLab, `{"id":7,"public_email":"e@example.com"}`, "7", "e@example.com", nil},
		{"microsoft mail", normalizeMicrosoft, `{"id":"m1","mail":"f@example.com","userPrincipalName":"f_ext#@tenant"}`, "m1", "f@example.com", nil},
		{"microsoft upn", normalizeMicrosoft, `{"id":"m2","mail":null,"userPrincipalName":"g@example.com"}`, "m2", "g@example.com", nil},
		{"microsoft bare upn", normalizeMicrosoft, `{"id":"m3","userPrincipalName":"guest"}`, "m3", "", nil},
		{"slack", normalizeSlack, `{"ok":true,"user":{"id":"U1","email":"h@example.com"}}`, "U1", "h@example.com", nil},
		{"slack revoked", normalizeSlack, `{"ok":false,"error":"token_revoked"}`, "", "", ErrInvalidProviderToken},
		{"slack outage", normalizeSlack, `{"ok":false,"error":"fatal_error"}`, "", "", ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.normalize(decodeRaw(t, tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.wantEmail, got.Email)
		})
	}
}

func TestPrimaryEmail(t *testing.T) {
	t.Parallel()

	emails := []map[string]any{
		{"email": "unverified@example.com", "primary": true, "verified": false},
		{"email": "secondary@example.com", "primary": false, "verified": true},
		{"email": "primary@example.com", "primary": true, "verified": true},
	}
	assert.Equal(t, "primary@example.com", primaryEmail(emails))
	assert.Equal(t, "secondary@example.com", primaryEmail(emails[:2]))
	assert.Empty(t, primaryEmail(emails[:1]))
}

func TestAdapter_Profile(t *testing.T) {
	t.Parallel()

	t.Run("normalizes email and keeps raw payload", func(t *testing.T) {
		t.Parallel()
		srv := stubProviderServer(t, map[string]any{"id": 42, "email": "  Jane@Example.COM "})
		a := NewAdapter(stubProvider(srv), ProviderSettings{ClientID: "c", ClientSecret: "s"}, srv.Client())

		p, err := a.Profile(t.Context(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, "42", p.ID)
		assert.Equal(t, "jane@example.com", p.Email)
		assert.NotNil(t, p.Raw)
	})

	t.Run("missing email is incomplete", func(t *testing.T) {
		t.Parallel()
		srv := stubProviderServer(t, map[string]any{"id": "1"})
		a := NewAdapter(stubProvider(srv), ProviderSettings{}, srv.Client())

		_, err := a.Profile(t.Context(), "good-token")
		assert.ErrorIs(t, err, ErrProfileIncomplete)
	})

	t.Run("empty token never hits the network", func(t *testing.T) {
		t.Parallel()
		a := NewAdapter(Provider{Name: "x", ProfileURL: "http://127.0.0.1:1/me", Normalize: normalizeFacebook}, ProviderSettings{}, nil)

		_, err := a.Profile(t.Context(), " ")
		assert.ErrorIs(t, err, ErrInvalidProviderToken)
	})

	t.Run("unreachable provider", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		a := NewAdapter(Provider{Name: "x", ProfileURL: srv.URL, Normalize: normalizeFacebook}, ProviderSettings{}, &http.Client{Timeout: time.Second})

		_, err := a.Profile(t.Context(), "token")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}

func TestAdapter_EmailsFallbackAndQueryPlacement(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "q-token" || r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`{"id":9,"email":null}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "q-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"email":"other@example.com","verified":true},{"email":"Main@Example.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := Provider{
		Name:            "queryish",
		ProfileURL:      srv.URL + "/me",
		EmailsURL:       srv.URL + "/emails",
		TokenPlacement:  TokenInQuery,
		TokenQueryParam: "token",
		Headers:         map[string]string{"X-Test": "yes"},
		Normalize:       normalizeGitHub,
	}
	a := NewAdapter(p, ProviderSettings{}, srv.Client())

	profile, err := a.Profile(t.Context(), "q-token")
	require.NoError(t, err)
	assert.Equal(t, "9", profile.ID)
	assert.Equal(t, "main@example.com", profile.Email)

	_, err = a.Profile(t.Context(), "wrong")
	assert.ErrorIs(t, err, ErrInvalidProviderToken)
}

func TestAdapter_VerifyIDToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		switch r.URL.Query().Get("id_token") {
		case "good":
			_, _ = w.Write([]byte(`{"sub":"g-1","email":"Ann@Example.com","email_verified":"true","aud":"cid"}`))
		case "other-aud":
			_, _ = w.Write([]byte(`{"sub":"g-2","email":"eve@example.com","email_verified":"true","aud":"evil"}`))
		case "unverified":
			_, _ = w.Write([]byte(`{"sub":"g-3","email":"x@example.com","email_verified":"false","aud":"cid"}`))
		case "down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	p := GoogleProvider()
	p.IDTokenURL = srv.URL + "/tokeninfo"
	a := NewAdapter(p, ProviderSettings{ClientID: "cid", ClientSecret: "s"}, srv.Client())

	profile, err := a.VerifyIDToken(t.Context(), "good")
	require.NoError(t, err)
	assert.Equal(t, "g-1", profile.ID)
	assert.Equal(t, "ann@example.com", profile.Email)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"audience mismatch", "other-aud", ErrInvalidProviderToken},
		{"rejected token", "garbage", ErrInvalidProviderToken},
		{"blank token", "  ", ErrInvalidProviderToken},
		{"unverified email", "unverified", ErrProfileIncomplete},
		{"provider outage", "down", ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.VerifyIDToken(t.Context(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("provider without token info endpoint", func(t *testing.T) {
		gh := NewAdapter(GitHubProvider(), ProviderSettings{ClientID: "cid", ClientSecret: "s"}, nil)
		_, err := gh.VerifyIDToken(t.Context(), "good")
		assert.ErrorIs(t, err, ErrIDTokenUnsupported)
		assert.Equal(t, KindUserInput, KindOf(err))
	})
}

func TestAdapter_AuthCodeURLUsesDefaultScopes(t *testing.T) {
	t.Parallel()

	a := NewAdapter(GoogleProvider(), ProviderSettings{ClientID: "cid", RedirectURL: "https://app.test/cb"}, nil)
	u := a.AuthCodeURL("st")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "state=st")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "scope=openid+email+profile")

	custom := NewAdapter(GoogleProvider(), ProviderSettings{ClientID: "cid", Scopes: []string{"email"}}, nil)
	assert.Contains(t, custom.AuthCodeURL("st"), "scope=email&")
}

func TestOAuthState(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testSettings(), WithMailer(newCaptureMailer()))
	require.NoError(t, err)
	snap := r.Snapshot()
	now := time.Now()

	value, err := newOAuthState(snap, "github", "web", now)
	require.NoError(t, err)

	st, err := parseOAuthState(snap, value, "github")
	require.NoError(t, err)
	assert.Equal(t, "web", st.ClientID)

	_, err = parseOAuthState(snap, value, "google")
	assert.ErrorIs(t, err, ErrInvalidState, "state is bound to its provider")

	expired, err := newOAuthState(snap, "github", "web", now.Add(-2*DefaultStateTTL))
	require.NoError(t, err)
	_, err = parseOAuthState(snap, expired, "github")
	assert.ErrorIs(t, err, ErrInvalidState)

	other := testSettings()
	other.JWTSecret = "another-secret"
	rotated, err := NewRegistry(other, WithMailer(newCaptureMailer()))
	require.NoError(t, err)
	_, err = parseOAuthState(rotated.Snapshot(), value, "github")
	assert.ErrorIs(t, err, ErrInvalidState)
}
