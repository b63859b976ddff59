package authentication

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/binder"
	"github.com/dmitrymomot/authkit/pkg/clientip"
	"github.com/dmitrymomot/authkit/pkg/handler"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
)

// MasterKeyHeader carries the admin key for the config endpoints.
const MasterKeyHeader = "masterkey"

// Service is the subset of auth.Service the routes call.
type Service interface {
	auth.TokenValidator
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password, clientID string) (*auth.Session, error)
	LoginWithProvider(ctx context.Context, provider string, cred auth.ProviderCredential, clientID string) (*auth.Session, error)
	AuthorizationURL(provider, clientID string) (string, error)
	CompleteAuthorization(ctx context.Context, provider, code, state string) (*auth.Session, error)
	Renew(ctx context.Context, refreshToken, clientID string) (*auth.Session, error)
	Logout(ctx context.Context, userID uuid.UUID, clientID string) error
	ConsumeVerification(ctx context.Context, token string) (*auth.User, error)
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

// SettingsAdmin is the admin config contract, implemented by *auth.Registry.
type SettingsAdmin interface {
	Snapshot() *auth.Snapshot
	Update(settings auth.Settings) error
}

// Module serves the authentication, verification hook and admin routes.
type Module struct {
	svc       Service
	settings  SettingsAdmin
	logger    *slog.Logger
	limiter   *ratelimiter.Limiter
	masterKey string
}

type Option func(*Module)

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRateLimiter limits the public authentication routes per client IP,
// using the rateLimit settings of the live snapshot.
func WithRateLimiter(l *ratelimiter.Limiter) Option {
	return func(m *Module) { m.limiter = l }
}

// WithMasterKey enables the admin config endpoints. Without a key they
// answer 404.
func WithMasterKey(key string) Option {
	return func(m *Module) { m.masterKey = key }
}

func New(svc Service, settings SettingsAdmin, opts ...Option) *Module {
	m := &Module{
		svc:      svc,
		settings: settings,
		logger:   logger.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle returns the module router. Mount it at "/".
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(auth.ClientID)

	r.Route("/authentication", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if m.limiter != nil {
				r.Use(ratelimiter.Middleware(m.limiter, m.rateLimitConfig,
					ratelimiter.Composite(ratelimiter.Static("auth"), clientip.KeyFunc),
					ratelimiter.WithLogger(m.logger),
					ratelimiter.WithRejectedHandler(m.rateLimited),
				))
			}

			r.Post("/local/new", wrap(m, m.register, binder.JSON()))
			r.Post("/local", wrap(m, m.login, binder.JSON()))
			r.Post("/forgot-password", wrap(m, m.forgotPassword, binder.JSON()))
			r.Post("/reset-password", wrap(m, m.resetPassword, binder.JSON()))
			r.Post("/verify-email/resend", wrap(m, m.resendVerification, binder.JSON()))
			r.Post("/renew", wrap(m, m.renew, binder.JSON()))
			r.Get("/init/{provider}", wrap(m, m.initProvider, binder.Path(chi.URLParam)))
			r.Post("/{provider}", wrap(m, m.loginWithProvider, binder.Path(chi.URLParam), binder.JSON()))
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(m.svc, auth.WithUnauthorizedHandler(m.unauthorized)))

			r.Post("/logout", wrap(m, m.logout))
			r.Get("/user", wrap(m, m.currentUser))
			r.Post("/change-password", wrap(m, m.changePassword, binder.JSON()))
		})
	})

	r.Route("/hook", func(r chi.Router) {
		r.Get("/verify-email/{verificationToken}", wrap(m, m.verifyEmail, binder.Path(chi.URLParam)))
		r.Get("/authentication/{provider}", wrap(m, m.providerCallback, binder.Path(chi.URLParam), binder.Query()))
	})

	r.Route("/admin/authentication", func(r chi.Router) {
		r.Use(m.requireMasterKey)
		r.Get("/config", wrap(m, m.getConfig))
		r.Put("/config", wrap(m, m.putConfig, binder.JSON()))
	})

	return r
}

func wrap[R any](m *Module, h handler.HandlerFunc[handler.Context, R], binders ...func(*http.Request, any) error) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](m.handleError),
	)
}

func (m *Module) rateLimitConfig(*http.Request) (ratelimiter.Config, bool) {
	rl := m.settings.Snapshot().RateLimit()
	if !rl.Enabled() {
		return ratelimiter.Config{}, false
	}
	return ratelimiter.PerWindow(rl.MaxRequests, rl.Window.Std()), true
}

func (m *Module) requireMasterKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.masterKey == "" {
			http.NotFound(w, r)
			return
		}
		key := r.Header.Get(MasterKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.masterKey)) != 1 {
			m.unauthorized(w, r, auth.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Module) unauthorized(w http.ResponseWriter, r *http.Request, _ error) {
	_ = handler.JSONError(unauthorizedError).Render(w, r)
}

func (m *Module) rateLimited(w http.ResponseWriter, r *http.Request) {
	_ = handler.JSONError(handler.NewHTTPError(http.StatusTooManyRequests, "rate_limited", "too many requests")).Render(w, r)
}
