package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
)

// IdentityResolver maps credentials or federated profiles to a User.
// It applies the active, verification and account-linking policies but never
// mints tokens.
type IdentityResolver struct {
	users    UserStorage
	hasher   PasswordHasher
	settings SnapshotSource
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

type IdentityOption func(*IdentityResolver)

func WithIdentityLogger(l *slog.Logger) IdentityOption {
	return func(r *IdentityResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(r *IdentityResolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewIdentityResolver(users UserStorage, hasher PasswordHasher, settings SnapshotSource, opts ...IdentityOption) *IdentityResolver {
	r := &IdentityResolver{
		users:    users,
		hasher:   hasher,
		settings: settings,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveLocal checks email/password. Unknown email, missing password and
// wrong password all return ErrInvalidCredentials.
func (r *IdentityResolver) ResolveLocal(ctx context.Context, email, password string) (*User, error) {
	email = sanitizer.NormalizeEmail(email)

	user, err := r.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			r.burnCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if !user.HasPassword() {
		r.burnCompare(password)
		return nil, ErrInvalidCredentials
	}
	if err := r.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, err
	}

	if !user.Active {
		return nil, ErrUserInactive
	}
	if r.settings.Snapshot().LocalSettings().VerificationRequired && !user.IsVerified {
		return nil, ErrEmailNotVerified
	}
	return user, nil
}

// burnCompare spends one hash comparison so unknown emails cost the same as
// wrong passwords.
func (r *IdentityResolver) burnCompare(password string) {
	r.dummyOnce.Do(func() {
		r.dummyHash, _ = r.hasher.Hash("authkit-timing-equalizer")
	})
	if r.dummyHash != nil {
		_ = r.hasher.Compare(r.dummyHash, password)
	}
}

// ResolveFederated finds or creates the user behind a provider profile and
// links the identity according to the provider's accountLinking policy.
func (r *IdentityResolver) ResolveFederated(ctx context.Context, provider string, profile NormalizedProfile, identity ProviderIdentity) (*User, error) {
	if profile.ID == "" || profile.Email == "" {
		return nil, ErrProfileIncomplete
	}
	adapter, err := r.settings.Snapshot().Provider(provider)
	if err != nil {
		return nil, err
	}

	email := sanitizer.NormalizeEmail(profile.Email)
	identity.ProviderID = profile.ID

	// A concurrent first login for the same email may win the create; the
	// second pass then takes the linking branch.
	for attempt := range 2 {
		user, err := r.users.GetUserByEmail(ctx, email)
		if err == nil {
			return r.link(ctx, user, provider, identity, adapter.AccountLinking())
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("failed to get user by email: %w", err)
		}

		now := r.now()
		user = &User{
			ID:         uuid.New(),
			Email:      email,
			Active:     true,
			IsVerified: true,
			Providers:  map[string]ProviderIdentity{provider: identity},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = r.users.CreateUser(ctx, user)
		if err == nil {
			r.logger.InfoContext(ctx, "user created from federated login",
				logger.UserID(user.ID.String()),
				logger.Provider(provider),
				logger.Component("identity"),
			)
			return user, nil
		}
		if !errors.Is(err, ErrEmailAlreadyExists) || attempt > 0 {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}
	return nil, ErrEmailAlreadyExists
}

func (r *IdentityResolver) link(ctx context.Context, user *User, provider string, identity ProviderIdentity, accountLinking bool) (*User, error) {
	if !user.Active {
		return nil, ErrUserInactive
	}

	existing, linked := user.Provider(provider)
	switch {
	case linked && existing.ProviderID != identity.ProviderID:
		r.logger.WarnContext(ctx, "provider identity mismatch for linked account",
			logger.UserID(user.ID.String()),
			logger.Provider(provider),
			logger.Component("identity"),
		)
		return nil, ErrAccountExists
	case !linked && !accountLinking:
		return nil, ErrAccountExists
	}

	if err := r.users.SetProviderIdentity(ctx, user.ID, provider, identity); err != nil {
		return nil, fmt.Errorf("failed to store provider identity: %w", err)
	}
	if user.Providers == nil {
		user.Providers = map[string]ProviderIdentity{}
	}
	user.Providers[provider] = identity

	if !linked {
		if !user.IsVerified {
			if err := r.users.SetVerified(ctx, user.ID, true); err != nil {
				return nil, fmt.Errorf("failed to mark user verified: %w", err)
			}
			user.IsVerified = true
		}
		r.logger.InfoContext(ctx, "provider linked to existing account",
			logger.UserID(user.ID.String()),
			logger.Provider(provider),
			logger.Component("identity"),
		)
	}
	return user, nil
}
