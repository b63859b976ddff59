package authentication_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/authkit/modules/authentication"
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
)

const (
	testSecret    = "router-test-secret-with-enough-entropy"
	testMasterKey = "admin-master-key"
)

type captureMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string][]string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{verification: map[string]string{}, reset: map[string][]string{}}
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification[to] = link
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[to] = append(m.reset[to], link)
	return nil
}

func (m *captureMailer) verificationToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.verification[email]
	require.True(t, ok, "no verification email for %s", email)
	return link[strings.LastIndex(link, "/")+1:]
}

func (m *captureMailer) resetLinks(email string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reset[email]...)
}

type testApp struct {
	handler  http.Handler
	store    *auth.MemoryStorage
	registry *auth.Registry
	mailer   *captureMailer
}

func baseSettings() auth.Settings {
	return auth.Settings{
		Local: auth.LocalSettings{
			Enabled:              true,
			VerificationRequired: true,
			MinPasswordLength:    3,
		},
		JWTSecret:        testSecret,
		BaseURL:          "https://auth.example.com",
		ResetPasswordURL: "https://app.example.com/reset",
	}
}

func newTestApp(t *testing.T, settings auth.Settings, providers []auth.Provider, opts ...authentication.Option) *testApp {
	t.Helper()

	mailer := newCaptureMailer()
	registry, err := auth.NewRegistry(settings, auth.WithMailer(mailer), auth.WithProviders(providers...))
	require.NoError(t, err)

	store := auth.NewMemoryStorage()
	svc := auth.NewService(store, registry, auth.WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)))
	module := authentication.New(svc, registry,
		append([]authentication.Option{authentication.WithMasterKey(testMasterKey)}, opts...)...,
	)

	return &testApp{handler: module.Handle(), store: store, registry: registry, mailer: mailer}
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (a *testApp) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body *strings.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
	} else {
		body = strings.NewReader("")
	}

	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, r)
	return rec
}

func (a *testApp) login(t *testing.T, email, password, clientID string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, request{
		method:  http.MethodPost,
		path:    "/authentication/local",
		body:    map[string]string{"email": email, "password": password},
		headers: map[string]string{"clientid": clientID},
	})
}

func (a *testApp) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	rec := a.do(t, request{method: http.MethodPost, path: "/authentication/local/new", body: map[string]string{"email": email, "password": password}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, request{method: http.MethodGet, path: "/hook/verify-email/" + a.mailer.verificationToken(t, email)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

type sessionBody struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s sessionBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	return s
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	return body.Error.Code
}

func bearer(clientID, token string) map[string]string {
	return map[string]string{"clientid": clientID, "Authorization": "Bearer " + token}
}

func TestRouter_VerificationGatesLogin(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)

	rec := app.do(t, request{
		method: http.MethodPost,
		path:   "/authentication/local/new",
		body:   map[string]string{"email": "alice@example.com", "password": "pw1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Registration was successful"}`, rec.Body.String())

	rec = app.login(t, "alice@example.com", "pw1", "web")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token := app.mailer.verificationToken(t, "alice@example.com")
	rec = app.do(t, request{method: http.MethodGet, path: "/hook/verify-email/" + token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")

	decodeSession(t, app.login(t, "alice@example.com", "pw1", "web"))

	rec = app.do(t, request{method: http.MethodGet, path: "/hook/verify-email/" + token})
	assert.Equal(t, http.StatusNotFound, rec.Code, "verification token is single use")
}

func TestRouter_SecondLoginInvalidatesFirst(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	app.registerVerified(t, "bob@example.com", "secret")

	first := decodeSession(t, app.login(t, "bob@example.com", "secret", "c1"))
	second := decodeSession(t, app.login(t, "bob@example.com", "secret", "c1"))
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	rec := app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("c1", first.AccessToken)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("c1", second.AccessToken)})
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "bob@example.com", user["email"])
	assert.NotContains(t, user, "PasswordHash")

	t.Run("token is bound to its client", func(t *testing.T) {
		rec := app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("c2", second.AccessToken)})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter_ForgotPassword(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	app.registerVerified(t, "carol@example.com", "old-secret")

	forgot := func(email string) *httptest.ResponseRecorder {
		return app.do(t, request{method: http.MethodPost, path: "/authentication/forgot-password", body: map[string]string{"email": email}})
	}

	rec := forgot("nobody@example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Ok"}`, rec.Body.String())
	assert.Empty(t, app.mailer.resetLinks("nobody@example.com"))

	rec = forgot("carol@example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Ok"}`, rec.Body.String())

	links := app.mailer.resetLinks("carol@example.com")
	require.Len(t, links, 1)
	u, err := url.Parse(links[0])
	require.NoError(t, err)
	resetToken := u.Query().Get("token")

	tok, err := app.store.GetToken(t.Context(), auth.TokenPasswordReset, resetToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenPasswordReset, tok.Type)

	session := decodeSession(t, app.login(t, "carol@example.com", "old-secret", "web"))

	reset := func(password string) *httptest.ResponseRecorder {
		return app.do(t, request{
			method: http.MethodPost,
			path:   "/authentication/reset-password",
			body:   map[string]string{"passwordResetToken": resetToken, "password": password},
		})
	}

	assert.Equal(t, http.StatusForbidden, reset("old-secret").Code, "password reuse")
	require.Equal(t, http.StatusOK, reset("new-secret").Code)
	assert.Equal(t, http.StatusNotFound, reset("another-secret").Code, "token is consumed")

	rec = app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("web", session.AccessToken)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "reset revokes every session")

	assert.Equal(t, http.StatusUnauthorized, app.login(t, "carol@example.com", "old-secret", "web").Code)
	decodeSession(t, app.login(t, "carol@example.com", "new-secret", "web"))
}

func stubProviderServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"good-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("id_token") {
		case "good-id-token":
			_, _ = w.Write([]byte(`{"sub":"oidc-1","email":"carol@example.com","email_verified":"true","aud":"oidc-client"}`))
		case "foreign-id-token":
			_, _ = w.Write([]byte(`{"sub":"oidc-2","email":"mallory@example.com","email_verified":"true","aud":"someone-else"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		}
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","email":"bob@example.com"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newStubApp(t *testing.T, opts ...authentication.Option) *testApp {
	t.Helper()

	srv := stubProviderServer(t)
	settings := baseSettings()
	settings.Providers = map[string]auth.ProviderSettings{
		"stub": {
			Enabled:      true,
			ClientID:     "stub-client",
			ClientSecret: "stub-secret",
			RedirectURL:  "https://auth.example.com/hook/authentication/stub",
		},
	}

	return newTestApp(t, settings, []auth.Provider{{
		Name: "stub",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		ProfileURL: srv.URL + "/me",
		Normalize: func(raw map[string]any) (auth.NormalizedProfile, error) {
			id, _ := raw["id"].(string)
			email, _ := raw["email"].(string)
			return auth.NormalizedProfile{ID: id, Email: email, Raw: raw}, nil
		},
	}}, opts...)
}

func TestRouter_FederatedLoginCreatesVerifiedUser(t *testing.T) {
	t.Parallel()

	app := newStubApp(t)

	rec := app.do(t, request{
		method:  http.MethodPost,
		path:    "/authentication/stub",
		body:    map[string]string{"access_token": "good-token"},
		headers: map[string]string{"clientid": "mobile"},
	})
	session := decodeSession(t, rec)

	user, err := app.store.GetUserByEmail(t.Context(), "bob@example.com")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, session.UserID, user.ID.String())
	require.Len(t, user.Providers, 1)
	assert.Equal(t, "p1", user.Providers["stub"].ProviderID)

	t.Run("rejected provider token", func(t *testing.T) {
		rec := app.do(t, request{
			method:  http.MethodPost,
			path:    "/authentication/stub",
			body:    map[string]string{"access_token": "stolen"},
			headers: map[string]string{"clientid": "mobile"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("id_token without a token info endpoint", func(t *testing.T) {
		rec := app.do(t, request{
			method:  http.MethodPost,
			path:    "/authentication/stub",
			body:    map[string]string{"id_token": "eyJ..."},
			headers: map[string]string{"clientid": "mobile"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("code exchange", func(t *testing.T) {
		rec := app.do(t, request{
			method:  http.MethodPost,
			path:    "/authentication/stub",
			body:    map[string]string{"code": "good-code"},
			headers: map[string]string{"clientid": "cli"},
		})
		decodeSession(t, rec)
	})
}

func TestRouter_IDTokenLogin(t *testing.T) {
	t.Parallel()

	srv := stubProviderServer(t)
	settings := baseSettings()
	settings.Providers = map[string]auth.ProviderSettings{
		"oidc": {Enabled: true, ClientID: "oidc-client", ClientSecret: "oidc-secret"},
	}
	app := newTestApp(t, settings, []auth.Provider{{
		Name:       "oidc",
		ProfileURL: srv.URL + "/me",
		IDTokenURL: srv.URL + "/tokeninfo",
		Normalize: func(raw map[string]any) (auth.NormalizedProfile, error) {
			id, _ := raw["sub"].(string)
			email, _ := raw["email"].(string)
			return auth.NormalizedProfile{ID: id, Email: email, Raw: raw}, nil
		},
	}})

	rec := app.do(t, request{
		method:  http.MethodPost,
		path:    "/authentication/oidc",
		body:    map[string]string{"id_token": "good-id-token"},
		headers: map[string]string{"clientid": "mobile"},
	})
	session := decodeSession(t, rec)

	user, err := app.store.GetUserByEmail(t.Context(), "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, user.ID.String())
	assert.Equal(t, "oidc-1", user.Providers["oidc"].ProviderID)

	for name, token := range map[string]string{
		"token issued for another client": "foreign-id-token",
		"token rejected by the provider":  "expired-id-token",
	} {
		t.Run(name, func(t *testing.T) {
			rec := app.do(t, request{
				method:  http.MethodPost,
				path:    "/authentication/oidc",
				body:    map[string]string{"id_token": token},
				headers: map[string]string{"clientid": "mobile"},
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	_, err = app.store.GetUserByEmail(t.Context(), "mallory@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestRouter_RedirectFlow(t *testing.T) {
	t.Parallel()

	app := newStubApp(t)

	rec := app.do(t, request{method: http.MethodGet, path: "/authentication/init/stub?client_id=web"})
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	rec = app.do(t, request{method: http.MethodGet, path: "/hook/authentication/stub?code=good-code&state=" + url.QueryEscape(state)})
	session := decodeSession(t, rec)

	rec = app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("web", session.AccessToken)})
	assert.Equal(t, http.StatusOK, rec.Code, "session is bound to the client carried in state")

	rec = app.do(t, request{method: http.MethodGet, path: "/hook/authentication/stub?code=good-code&state=forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ProviderActivation(t *testing.T) {
	t.Parallel()

	app := newStubApp(t)
	body := map[string]string{"access_token": "good-token"}
	headers := map[string]string{"clientid": "web"}

	rec := app.do(t, request{method: http.MethodPost, path: "/authentication/unknown", body: body, headers: headers})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, app.registry.Disable("stub"))
	rec = app.do(t, request{method: http.MethodPost, path: "/authentication/stub", body: body, headers: headers})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, app.registry.Enable("stub"))
	rec = app.do(t, request{method: http.MethodPost, path: "/authentication/stub", body: body, headers: headers})
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.registry.Disable(auth.MethodLocal))
	rec = app.do(t, request{method: http.MethodPost, path: "/authentication/local/new", body: map[string]string{"email": "x@example.com", "password": "pw1"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_RenewAndLogout(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	app.registerVerified(t, "dave@example.com", "secret")
	first := decodeSession(t, app.login(t, "dave@example.com", "secret", "web"))

	renew := func(refresh string) *httptest.ResponseRecorder {
		return app.do(t, request{
			method:  http.MethodPost,
			path:    "/authentication/renew",
			body:    map[string]string{"refreshToken": refresh},
			headers: map[string]string{"clientid": "web"},
		})
	}

	second := decodeSession(t, renew(first.RefreshToken))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, renew(first.RefreshToken).Code, "rotated refresh token is dead")

	rec := app.do(t, request{method: http.MethodPost, path: "/authentication/logout", headers: bearer("web", second.AccessToken)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out"}`, rec.Body.String())

	rec = app.do(t, request{method: http.MethodGet, path: "/authentication/user", headers: bearer("web", second.AccessToken)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, renew(second.RefreshToken).Code)
}

func TestRouter_ChangePassword(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	app.registerVerified(t, "erin@example.com", "secret")
	session := decodeSession(t, app.login(t, "erin@example.com", "secret", "web"))

	change := func(oldPassword, newPassword string) *httptest.ResponseRecorder {
		return app.do(t, request{
			method:  http.MethodPost,
			path:    "/authentication/change-password",
			body:    map[string]string{"oldPassword": oldPassword, "newPassword": newPassword},
			headers: bearer("web", session.AccessToken),
		})
	}

	assert.Equal(t, http.StatusUnauthorized, change("wrong", "better-secret").Code)
	require.Equal(t, http.StatusOK, change("secret", "better-secret").Code)
	decodeSession(t, app.login(t, "erin@example.com", "better-secret", "web"))
}

func TestRouter_RequestErrors(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	app.registerVerified(t, "frank@example.com", "secret")

	tests := []struct {
		name string
		req  request
		code int
	}{
		{
			name: "register without password",
			req:  request{method: http.MethodPost, path: "/authentication/local/new", body: map[string]string{"email": "new@example.com"}},
			code: http.StatusBadRequest,
		},
		{
			name: "register existing email",
			req:  request{method: http.MethodPost, path: "/authentication/local/new", body: map[string]string{"email": "frank@example.com", "password": "secret"}},
			code: http.StatusForbidden,
		},
		{
			name: "login without client id",
			req:  request{method: http.MethodPost, path: "/authentication/local", body: map[string]string{"email": "frank@example.com", "password": "secret"}},
			code: http.StatusBadRequest,
		},
		{
			name: "login with unknown email",
			req:  request{method: http.MethodPost, path: "/authentication/local", body: map[string]string{"email": "ghost@example.com", "password": "secret"}, headers: map[string]string{"clientid": "web"}},
			code: http.StatusUnauthorized,
		},
		{
			name: "login without body",
			req:  request{method: http.MethodPost, path: "/authentication/local", headers: map[string]string{"clientid": "web"}},
			code: http.StatusBadRequest,
		},
		{
			name: "protected route without token",
			req:  request{method: http.MethodGet, path: "/authentication/user", headers: map[string]string{"clientid": "web"}},
			code: http.StatusUnauthorized,
		},
		{
			name: "unknown verification token",
			req:  request{method: http.MethodGet, path: "/hook/verify-email/does-not-exist"},
			code: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, app.do(t, tt.req).Code)
		})
	}

	t.Run("unknown email and wrong password look the same", func(t *testing.T) {
		t.Parallel()
		unknown := app.login(t, "ghost@example.com", "secret", "web")
		wrong := app.login(t, "frank@example.com", "not-it", "web")
		assert.Equal(t, unknown.Code, wrong.Code)
		assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	})
}

func TestRouter_AdminConfig(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseSettings(), nil)
	admin := map[string]string{authentication.MasterKeyHeader: testMasterKey}

	assert.Equal(t, http.StatusUnauthorized, app.do(t, request{method: http.MethodGet, path: "/admin/authentication/config"}).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, request{
		method:  http.MethodGet,
		path:    "/admin/authentication/config",
		headers: map[string]string{authentication.MasterKeyHeader: "guess"},
	}).Code)

	rec := app.do(t, request{method: http.MethodGet, path: "/admin/authentication/config", headers: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), testSecret)

	var cfg struct {
		Version  uint64        `json:"version"`
		Settings auth.Settings `json:"settings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))

	cfg.Settings.Local.Enabled = false
	rec = app.do(t, request{method: http.MethodPut, path: "/admin/authentication/config", body: cfg.Settings, headers: admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, app.registry.Snapshot().MethodEnabled(auth.MethodLocal))
	assert.Equal(t, testSecret, app.registry.Snapshot().Settings().JWTSecret, "redacted secret is kept")

	rec = app.do(t, request{method: http.MethodPost, path: "/authentication/local/new", body: map[string]string{"email": "late@example.com", "password": "pw1"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	cfg.Settings.JWTSecret = ""
	rec = app.do(t, request{method: http.MethodPut, path: "/admin/authentication/config", body: cfg.Settings, headers: admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, testSecret, app.registry.Snapshot().Settings().JWTSecret, "invalid update keeps the live snapshot")

	t.Run("disabled without master key", func(t *testing.T) {
		t.Parallel()
		registry, err := auth.NewRegistry(baseSettings(), auth.WithMailer(newCaptureMailer()))
		require.NoError(t, err)
		h := authentication.New(auth.NewService(auth.NewMemoryStorage(), registry), registry).Handle()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/authentication/config", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	t.Cleanup(store.Close)

	settings := baseSettings()
	settings.RateLimit = auth.RateLimitSettings{MaxRequests: 2, Window: auth.Duration(time.Minute)}
	app := newTestApp(t, settings, nil, authentication.WithRateLimiter(ratelimiter.New(store)))

	forgot := request{method: http.MethodPost, path: "/authentication/forgot-password", body: map[string]string{"email": "x@example.com"}}
	require.Equal(t, http.StatusOK, app.do(t, forgot).Code)
	require.Equal(t, http.StatusOK, app.do(t, forgot).Code)

	rec := app.do(t, forgot)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", errorCode(t, rec))

	rec = app.do(t, request{method: http.MethodGet, path: "/hook/verify-email/unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "hooks are not limited")

	// Limits follow the live snapshot.
	updated := app.registry.Snapshot().Settings()
	updated.RateLimit = auth.RateLimitSettings{}
	require.NoError(t, app.registry.Update(updated))
	assert.Equal(t, http.StatusOK, app.do(t, forgot).Code)
}
