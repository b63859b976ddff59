package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/jwt"
	"github.com/dmitrymomot/authkit/pkg/logger"
)

// SessionManager issues, renews, revokes and validates access/refresh pairs.
type SessionManager struct {
	sessions SessionStorage
	users    UserStorage
	settings SnapshotSource
	tokens   TokenGenerator
	metrics  MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time
}

type SessionOption func(*SessionManager)

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithSessionMetrics(r MetricsRecorder) SessionOption {
	return func(m *SessionManager) {
		if r != nil {
			m.metrics = r
		}
	}
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewSessionManager(sessions SessionStorage, users UserStorage, settings SnapshotSource, tokens TokenGenerator, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		sessions: sessions,
		users:    users,
		settings: settings,
		tokens:   tokens,
		metrics:  NoopMetrics{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue replaces every session of (userID, clientID) with a fresh pair.
func (m *SessionManager) Issue(ctx context.Context, userID uuid.UUID, clientID string) (*Session, error) {
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	sess, err := m.mint(ctx, user.ID, clientID, "")
	if err != nil {
		return nil, err
	}
	m.metrics.SessionIssued(ReasonLogin)
	return sess, nil
}

// Renew rotates a refresh token. Of two concurrent renewals with the same
// token only one succeeds; the other gets ErrUnauthorized.
func (m *SessionManager) Renew(ctx context.Context, refreshToken, clientID string) (*Session, error) {
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	rt, err := m.sessions.GetRefreshToken(ctx, refreshToken, clientID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if rt.Expired(m.now()) {
		return nil, ErrUnauthorized
	}

	user, err := m.users.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	sess, err := m.mint(ctx, user.ID, clientID, refreshToken)
	if err != nil {
		return nil, err
	}
	m.metrics.SessionIssued(ReasonRenew)
	return sess, nil
}

// Revoke deletes the session of (userID, clientID), or every session of the
// user when clientID is empty.
func (m *SessionManager) Revoke(ctx context.Context, userID uuid.UUID, clientID string) error {
	if err := m.sessions.DeleteSessions(ctx, userID, clientID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	scope := ScopeClient
	if clientID == "" {
		scope = ScopeAll
	}
	m.metrics.SessionRevoked(scope)
	m.logger.InfoContext(ctx, "sessions revoked",
		logger.UserID(userID.String()),
		logger.ClientID(clientID),
		slog.String("scope", scope),
		logger.Component("session"),
	)
	return nil
}

// Validate resolves a bearer token to its active owner. The signature is
// checked first; the store lookup decides, so revocation is immediate.
func (m *SessionManager) Validate(ctx context.Context, bearer, clientID string) (user *User, err error) {
	defer func() { m.metrics.TokenValidated(ResultOf(err)) }()

	if bearer == "" || clientID == "" {
		return nil, ErrUnauthorized
	}

	claims, err := m.settings.Snapshot().Signer().Verify(bearer)
	if err != nil {
		return nil, ErrUnauthorized
	}

	at, err := m.sessions.GetAccessToken(ctx, bearer, clientID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if at.Expired(m.now()) {
		return nil, ErrUnauthorized
	}
	if claims.UserID != at.UserID.String() || claims.ClientID != at.ClientID {
		return nil, ErrUnauthorized
	}

	user, err = m.users.GetUserByID(ctx, at.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	return user, nil
}

func (m *SessionManager) mint(ctx context.Context, userID uuid.UUID, clientID, previousRefresh string) (*Session, error) {
	snap := m.settings.Snapshot()
	settings := snap.settings
	now := m.now()
	accessExp := now.Add(settings.TokenInvalidationPeriod.Std())
	refreshExp := now.Add(settings.RefreshTokenInvalidationPeriod.Std())

	signed, err := snap.Signer().Sign(AccessClaims{
		UserID:   userID.String(),
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NumericDate(now),
			ExpiresAt: jwt.NumericDate(accessExp),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := m.tokens.Generate()
	if err != nil {
		return nil, err
	}

	err = m.sessions.ReplaceSession(ctx, previousRefresh,
		AccessToken{UserID: userID, ClientID: clientID, Token: signed, ExpiresAt: accessExp},
		RefreshToken{UserID: userID, ClientID: clientID, Token: refresh, ExpiresAt: refreshExp},
	)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to replace session: %w", err)
	}

	return &Session{
		UserID:                userID,
		ClientID:              clientID,
		AccessToken:           signed,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func validateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" || len(clientID) > 255 {
		return ErrInvalidClientID
	}
	return nil
}
