package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStorage persists users. Implementations must enforce one user per
// email and report it as ErrEmailAlreadyExists; lookups of missing users
// return ErrUserNotFound.
type UserStorage interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// SetProviderIdentity inserts or replaces the identity linked under provider.
	SetProviderIdentity(ctx context.Context, id uuid.UUID, provider string, identity ProviderIdentity) error
}

// TokenStorage persists single-use workflow tokens.
type TokenStorage interface {
	// ReplaceToken stores token and deletes any other token of the same
	// (Type, UserID) in one step.
	ReplaceToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, typ TokenType, value string) (*Token, error)
	// ConsumeToken atomically finds and deletes a token. Only one of several
	// concurrent callers gets it; the rest see ErrTokenNotFound.
	ConsumeToken(ctx context.Context, typ TokenType, value string) (*Token, error)
	DeleteTokens(ctx context.Context, typ TokenType, userID uuid.UUID) error
}

// SessionStorage persists access/refresh token pairs.
// There is at most one pair per (UserID, ClientID).
type SessionStorage interface {
	// ReplaceSession atomically replaces the pair for (access.UserID, access.ClientID).
	// A non-empty previousRefresh makes the replace conditional: it succeeds only
	// while that refresh token is still the live one for the pair, and returns
	// ErrSessionNotFound otherwise.
	ReplaceSession(ctx context.Context, previousRefresh string, access AccessToken, refresh RefreshToken) error
	GetAccessToken(ctx context.Context, token, clientID string) (*AccessToken, error)
	GetRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error)
	// DeleteSessions removes the pair for (userID, clientID), or every pair of
	// the user when clientID is empty.
	DeleteSessions(ctx context.Context, userID uuid.UUID, clientID string) error
}

// Storage bundles every contract a full deployment needs.
type Storage interface {
	UserStorage
	TokenStorage
	SessionStorage
	Ping(ctx context.Context) error
}

// Purger is implemented by stores that can drop expired sessions and
// workflow tokens in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context, verificationTTL, resetTTL time.Duration) (int64, error)
}
