package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

// ProviderCredential is what a client presents for a federated login:
// a provider access token, an OpenID Connect id_token or an authorization code.
// The first non-empty one in that order is used.
type ProviderCredential struct {
	AccessToken string
	IDToken     string
	Code        string
}

// Service wires identity resolution, sessions and workflows behind the
// operations exposed over HTTP.
type Service struct {
	store    Storage
	registry *Registry
	hasher   PasswordHasher
	tokens   TokenGenerator
	metrics  MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time

	identity *IdentityResolver
	sessions *SessionManager
	workflow *Workflow
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithHasher(h PasswordHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.tokens = g
		}
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the facade. The email collaborator comes from the registry.
func NewService(store Storage, registry *Registry, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		hasher:   NewBcryptHasher(0),
		tokens:   NewRandomTokenGenerator(32),
		metrics:  NoopMetrics{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.identity = NewIdentityResolver(store, s.hasher, registry,
		WithIdentityLogger(s.logger),
		WithIdentityClock(s.now),
	)
	s.sessions = NewSessionManager(store, store, registry, s.tokens,
		WithSessionLogger(s.logger),
		WithSessionMetrics(s.metrics),
		WithSessionClock(s.now),
	)
	s.workflow = NewWorkflow(store, store, s.sessions, registry.Mailer(), s.hasher, s.tokens, registry,
		WithWorkflowLogger(s.logger),
		WithWorkflowClock(s.now),
	)
	return s
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) Sessions() *SessionManager { return s.sessions }

func (s *Service) Workflow() *Workflow { return s.workflow }

func (s *Service) Identity() *IdentityResolver { return s.identity }

// Ping checks the storage backend.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Register creates a local account and sends the verification email.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	snap := s.registry.Snapshot()
	if !snap.MethodEnabled(MethodLocal) {
		return nil, ErrMethodDisabled
	}

	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.Required("email", email),
		validator.ValidEmail("email", email),
		validator.MaxLen("email", email, 254),
	); err != nil {
		return nil, err
	}
	if err := validatePassword(password, snap.LocalSettings().MinPasswordLength); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		logger.UserID(user.ID.String()),
		logger.Method(MethodLocal),
		logger.Component("service"),
	)

	// The account exists from here on. A failed send is recovered through
	// ResendVerification, so it must not turn into a failed registration.
	if err := s.workflow.RequestVerification(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			logger.UserID(user.ID.String()),
			logger.Error(err),
			logger.Component("service"),
		)
	}
	return user, nil
}

// Login authenticates email/password and issues a session for clientID.
func (s *Service) Login(ctx context.Context, email, password, clientID string) (sess *Session, err error) {
	defer func() { s.metrics.LoginAttempt(MethodLocal, ResultOf(err)) }()

	if !s.registry.Snapshot().MethodEnabled(MethodLocal) {
		return nil, ErrMethodDisabled
	}
	if err := validator.Apply(
		validator.Required("email", email),
		validator.Required("password", password),
	); err != nil {
		return nil, err
	}
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}

	user, err := s.identity.ResolveLocal(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, user.ID, clientID)
}

// LoginWithProvider authenticates with a provider access token, id_token or code.
func (s *Service) LoginWithProvider(ctx context.Context, provider string, cred ProviderCredential, clientID string) (sess *Session, err error) {
	method := UnknownProviderLabel
	defer func() { s.metrics.LoginAttempt(method, ResultOf(err)) }()

	adapter, err := s.registry.Snapshot().Provider(provider)
	method = providerLabel(provider, err)
	if err != nil {
		return nil, err
	}
	if err := validator.Apply(validator.Rule{
		Check: func() bool { return cred.AccessToken != "" || cred.IDToken != "" || cred.Code != "" },
		Error: validator.ValidationError{
			Field:          "access_token",
			Message:        "access_token, id_token or code is required",
			TranslationKey: "validation.required",
		},
	}); err != nil {
		return nil, err
	}
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}

	if cred.AccessToken == "" && cred.IDToken != "" {
		start := s.now()
		profile, err := adapter.VerifyIDToken(ctx, cred.IDToken)
		s.metrics.ProviderCall(adapter.Name(), "id_token", time.Since(start), err)
		if err != nil {
			return nil, s.providerFailure(ctx, adapter, err)
		}
		return s.resolveSession(ctx, adapter, profile, ProviderIdentity{}, clientID)
	}

	identity := ProviderIdentity{Token: cred.AccessToken}
	if identity.Token == "" {
		tok, err := s.exchange(ctx, adapter, cred.Code)
		if err != nil {
			return nil, err
		}
		identity = identityFromToken(tok)
	}

	return s.federatedSession(ctx, adapter, identity, clientID)
}

// AuthorizationURL starts a redirect flow. The returned URL carries a signed
// state binding provider and clientID.
func (s *Service) AuthorizationURL(provider, clientID string) (string, error) {
	snap := s.registry.Snapshot()
	adapter, err := snap.Provider(provider)
	if err != nil {
		return "", err
	}
	if err := validateClientID(clientID); err != nil {
		return "", err
	}

	state, err := newOAuthState(snap, provider, clientID, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to create oauth state: %w", err)
	}
	return adapter.AuthCodeURL(state), nil
}

// CompleteAuthorization finishes a redirect flow started by AuthorizationURL.
func (s *Service) CompleteAuthorization(ctx context.Context, provider, code, state string) (sess *Session, err error) {
	method := UnknownProviderLabel
	defer func() { s.metrics.LoginAttempt(method, ResultOf(err)) }()

	snap := s.registry.Snapshot()
	adapter, err := snap.Provider(provider)
	method = providerLabel(provider, err)
	if err != nil {
		return nil, err
	}
	st, err := parseOAuthState(snap, state, provider)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrInvalidProviderToken
	}

	tok, err := s.exchange(ctx, adapter, code)
	if err != nil {
		return nil, err
	}
	return s.federatedSession(ctx, adapter, identityFromToken(tok), st.ClientID)
}

// UnknownProviderLabel is the metrics method label for provider names that
// are not in the catalog. Request paths must not mint label values.
const UnknownProviderLabel = "unknown"

// providerLabel keeps metric labels bounded by the provider catalog.
func providerLabel(provider string, lookupErr error) string {
	if lookupErr == nil || errors.Is(lookupErr, ErrMethodDisabled) {
		return provider
	}
	return UnknownProviderLabel
}

func (s *Service) exchange(ctx context.Context, adapter ProviderAdapter, code string) (*oauth2.Token, error) {
	start := s.now()
	tok, err := adapter.Exchange(ctx, code)
	s.metrics.ProviderCall(adapter.Name(), "exchange", time.Since(start), err)
	return tok, err
}

func (s *Service) federatedSession(ctx context.Context, adapter ProviderAdapter, identity ProviderIdentity, clientID string) (*Session, error) {
	start := s.now()
	profile, err := adapter.Profile(ctx, identity.Token)
	s.metrics.ProviderCall(adapter.Name(), "profile", time.Since(start), err)
	if err != nil {
		return nil, s.providerFailure(ctx, adapter, err)
	}
	return s.resolveSession(ctx, adapter, profile, identity, clientID)
}

func (s *Service) providerFailure(ctx context.Context, adapter ProviderAdapter, err error) error {
	s.logger.WarnContext(ctx, "provider profile lookup failed",
		logger.Provider(adapter.Name()),
		logger.Error(err),
		logger.Component("service"),
	)
	return err
}

func (s *Service) resolveSession(ctx context.Context, adapter ProviderAdapter, profile NormalizedProfile, identity ProviderIdentity, clientID string) (*Session, error) {
	user, err := s.identity.ResolveFederated(ctx, adapter.Name(), profile, identity)
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, user.ID, clientID)
}

func identityFromToken(tok *oauth2.Token) ProviderIdentity {
	return ProviderIdentity{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
	}
}

// Renew exchanges a refresh token for a new session.
func (s *Service) Renew(ctx context.Context, refreshToken, clientID string) (*Session, error) {
	return s.sessions.Renew(ctx, refreshToken, clientID)
}

// Logout revokes the session of (userID, clientID).
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, clientID string) error {
	if err := validateClientID(clientID); err != nil {
		return err
	}
	return s.sessions.Revoke(ctx, userID, clientID)
}

// Validate implements TokenValidator.
func (s *Service) Validate(ctx context.Context, bearer, clientID string) (*User, error) {
	return s.sessions.Validate(ctx, bearer, clientID)
}

func (s *Service) ConsumeVerification(ctx context.Context, token string) (*User, error) {
	return s.workflow.ConsumeVerification(ctx, token)
}

func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if !s.registry.Snapshot().MethodEnabled(MethodLocal) {
		return ErrMethodDisabled
	}
	return s.workflow.ResendVerification(ctx, email)
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if !s.registry.Snapshot().MethodEnabled(MethodLocal) {
		return ErrMethodDisabled
	}
	if err := validator.Apply(validator.Required("email", email)); err != nil {
		return err
	}
	return s.workflow.ForgotPassword(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !s.registry.Snapshot().MethodEnabled(MethodLocal) {
		return ErrMethodDisabled
	}
	return s.workflow.ResetPassword(ctx, token, newPassword)
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	return s.workflow.ChangePassword(ctx, userID, oldPassword, newPassword)
}

// SetActive soft-(de)activates a user. Deactivation revokes every session.
func (s *Service) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	if err := s.store.SetActive(ctx, userID, active); err != nil {
		return fmt.Errorf("failed to set user active: %w", err)
	}
	if !active {
		return s.sessions.Revoke(ctx, userID, "")
	}
	return nil
}

func validatePassword(password string, minLen int) error {
	return validator.Apply(
		validator.Required("password", password),
		validator.When(minLen > 0, validator.MinLen("password", password, minLen)),
		validator.Rule{
			Check: func() bool { return len(password) <= MaxPasswordBytes },
			Error: validator.ValidationError{
				Field:          "password",
				Message:        fmt.Sprintf("must be at most %d bytes long", MaxPasswordBytes),
				TranslationKey: "validation.max_length",
			},
		},
	)
}
