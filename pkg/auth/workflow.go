package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
)

// Mailer sends the templated authentication emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, link string) error
	SendPasswordResetEmail(ctx context.Context, to, link string) error
}

// SessionRevoker revokes sessions; empty clientID means every client.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID uuid.UUID, clientID string) error
}

// Workflow runs the single-use verification and password reset tokens:
// Issued -> Consumed | Expired.
type Workflow struct {
	users    UserStorage
	tokens   TokenStorage
	sessions SessionRevoker
	mailer   Mailer
	hasher   PasswordHasher
	gen      TokenGenerator
	settings SnapshotSource
	logger   *slog.Logger
	now      func() time.Time
}

type WorkflowOption func(*Workflow)

func WithWorkflowLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorkflow(
	users UserStorage,
	tokens TokenStorage,
	sessions SessionRevoker,
	mailer Mailer,
	hasher PasswordHasher,
	gen TokenGenerator,
	settings SnapshotSource,
	opts ...WorkflowOption,
) *Workflow {
	w := &Workflow{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		mailer:   mailer,
		hasher:   hasher,
		gen:      gen,
		settings: settings,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RequestVerification supersedes any live verification token of user and
// emails a link to the new one.
func (w *Workflow) RequestVerification(ctx context.Context, user *User) error {
	if w.mailer == nil {
		return ErrMissingDependency
	}

	value, err := w.issue(ctx, TokenVerification, user.ID)
	if err != nil {
		return err
	}

	link := w.settings.Snapshot().settings.BaseURL + "/hook/verify-email/" + url.PathEscape(value)
	if err := w.mailer.SendVerificationEmail(ctx, user.Email, link); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// ResendVerification re-sends the verification email. Like ForgotPassword
// it reports success for unknown, inactive and already verified addresses.
func (w *Workflow) ResendVerification(ctx context.Context, email string) error {
	user, err := w.users.GetUserByEmail(ctx, sanitizer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get user by email: %w", err)
	}
	if !user.Active || user.IsVerified {
		return nil
	}
	if err := w.RequestVerification(ctx, user); err != nil {
		w.logger.ErrorContext(ctx, "failed to resend verification",
			logger.UserID(user.ID.String()),
			logger.Error(err),
			logger.Component("workflow"),
		)
	}
	return nil
}

// ConsumeVerification marks the token's owner verified. Unknown tokens return
// ErrTokenNotFound, expired ones ErrTokenExpired; both are gone afterwards.
func (w *Workflow) ConsumeVerification(ctx context.Context, value string) (*User, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}

	tok, err := w.tokens.ConsumeToken(ctx, TokenVerification, value)
	if err != nil {
		return nil, err
	}
	if tok.Expired(w.settings.Snapshot().settings.VerificationTokenTTL.Std(), w.now()) {
		return nil, ErrTokenExpired
	}

	if err := w.users.SetVerified(ctx, tok.UserID, true); err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}
	user, err := w.users.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	w.logger.InfoContext(ctx, "email verified",
		logger.UserID(user.ID.String()),
		logger.Component("workflow"),
	)
	return user, nil
}

// ForgotPassword emails a reset link to an existing active user. The result
// is the same whether or not the address exists, and send failures are only
// logged.
func (w *Workflow) ForgotPassword(ctx context.Context, email string) error {
	email = sanitizer.NormalizeEmail(email)

	user, err := w.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			w.logger.DebugContext(ctx, "password reset requested for unknown email",
				slog.String("email", sanitizer.MaskEmail(email)),
				logger.Component("workflow"),
			)
			return nil
		}
		return fmt.Errorf("failed to get user by email: %w", err)
	}
	if !user.Active {
		return nil
	}
	if w.mailer == nil {
		return ErrMissingDependency
	}

	value, err := w.issue(ctx, TokenPasswordReset, user.ID)
	if err != nil {
		return err
	}

	if err := w.mailer.SendPasswordResetEmail(ctx, user.Email, resetLink(w.settings.Snapshot().settings.ResetPasswordURL, value)); err != nil {
		w.logger.ErrorContext(ctx, "failed to send password reset email",
			logger.UserID(user.ID.String()),
			logger.Error(err),
			logger.Component("workflow"),
		)
	}
	return nil
}

// ResetPassword sets a new password with a reset token and revokes every
// session of the user. Reusing the current password returns ErrPasswordReuse
// and leaves the token usable.
func (w *Workflow) ResetPassword(ctx context.Context, value, newPassword string) error {
	if value == "" {
		return ErrTokenNotFound
	}
	if err := validatePassword(newPassword, w.settings.Snapshot().LocalSettings().MinPasswordLength); err != nil {
		return err
	}

	tok, err := w.tokens.GetToken(ctx, TokenPasswordReset, value)
	if err != nil {
		return err
	}
	if tok.Expired(w.settings.Snapshot().settings.PasswordResetTokenTTL.Std(), w.now()) {
		if _, err := w.tokens.ConsumeToken(ctx, TokenPasswordReset, value); err != nil && !errors.Is(err, ErrTokenNotFound) {
			w.logger.WarnContext(ctx, "failed to delete expired reset token", logger.Error(err), logger.Component("workflow"))
		}
		return ErrTokenExpired
	}

	user, err := w.users.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	// The token stays usable until expiry in case the account is reactivated.
	if !user.Active {
		return ErrUserInactive
	}
	if user.HasPassword() {
		switch err := w.hasher.Compare(user.PasswordHash, newPassword); {
		case err == nil:
			return ErrPasswordReuse
		case !errors.Is(err, ErrInvalidCredentials):
			return err
		}
	}

	if _, err := w.tokens.ConsumeToken(ctx, TokenPasswordReset, value); err != nil {
		return err
	}

	if err := w.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "password reset",
		logger.UserID(user.ID.String()),
		logger.Component("workflow"),
	)
	return nil
}

// ChangePassword replaces the password of an authenticated user and revokes
// every session.
func (w *Workflow) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword, w.settings.Snapshot().LocalSettings().MinPasswordLength); err != nil {
		return err
	}

	user, err := w.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !user.HasPassword() {
		return ErrInvalidCredentials
	}
	if err := w.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}

	return w.setPassword(ctx, user.ID, newPassword)
}

func (w *Workflow) setPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := w.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := w.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return w.sessions.Revoke(ctx, userID, "")
}

func (w *Workflow) issue(ctx context.Context, typ TokenType, userID uuid.UUID) (string, error) {
	value, err := w.gen.Generate()
	if err != nil {
		return "", err
	}
	if err := w.tokens.ReplaceToken(ctx, Token{
		Type:      typ,
		UserID:    userID,
		Value:     value,
		CreatedAt: w.now(),
	}); err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", typ, err)
	}
	return value, nil
}

func resetLink(base, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(value)
}
