package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema for pg.Migrate.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store implements auth.Storage on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ auth.Storage = (*Store)(nil)
	_ auth.Purger  = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Open migrates the schema and returns a ready Store.
func Open(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) (*Store, error) {
	if err := pg.Migrate(ctx, pool, Migrations(), cfg, log); err != nil {
		return nil, err
	}
	return New(pool), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return pg.Healthcheck(s.pool)(ctx)
}

func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, active, is_verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user.ID, user.Email, user.PasswordHash, user.Active, user.IsVerified, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return err
		}
		for name, identity := range user.Providers {
			if err := upsertProvider(ctx, tx, user.ID, name, identity); err != nil {
				return err
			}
		}
		return nil
	})
	if pg.IsDuplicateKeyError(err) {
		return auth.ErrEmailAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, password_hash, active, is_verified, created_at, updated_at FROM users`

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.getUser(ctx, selectUser+` WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, selectUser+` WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT provider, provider_id, token, refresh_token, token_expiry
		FROM user_providers WHERE user_id = $1`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user providers: %w", err)
	}
	defer rows.Close()

	u.Providers = map[string]auth.ProviderIdentity{}
	for rows.Next() {
		var (
			name     string
			identity auth.ProviderIdentity
			expiry   *time.Time
		)
		if err := rows.Scan(&name, &identity.ProviderID, &identity.Token, &identity.RefreshToken, &expiry); err != nil {
			return nil, fmt.Errorf("failed to scan user provider: %w", err)
		}
		if expiry != nil {
			identity.TokenExpiry = *expiry
		}
		u.Providers[name] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user providers: %w", err)
	}
	return &u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error {
	return s.updateUser(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash)
}

func (s *Store) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return s.updateUser(ctx, `UPDATE users SET is_verified = $2, updated_at = $3 WHERE id = $1`, id, verified)
}

func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.updateUser(ctx, `UPDATE users SET active = $2, updated_at = $3 WHERE id = $1`, id, active)
}

func (s *Store) updateUser(ctx context.Context, query string, id uuid.UUID, value any) error {
	tag, err := s.pool.Exec(ctx, query, id, value, s.now())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetProviderIdentity(ctx context.Context, id uuid.UUID, provider string, identity auth.ProviderIdentity) error {
	err := upsertProvider(ctx, s.pool, id, provider, identity)
	if pg.IsForeignKeyViolationError(err) {
		return auth.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set provider identity: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertProvider(ctx context.Context, db execer, userID uuid.UUID, provider string, identity auth.ProviderIdentity) error {
	var expiry *time.Time
	if !identity.TokenExpiry.IsZero() {
		expiry = &identity.TokenExpiry
	}
	_, err := db.Exec(ctx, `
		INSERT INTO user_providers (user_id, provider, provider_id, token, refresh_token, token_expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			token = EXCLUDED.token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry`,
		userID, provider, identity.ProviderID, identity.Token, identity.RefreshToken, expiry,
	)
	return err
}

func (s *Store) ReplaceToken(ctx context.Context, token auth.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (type, user_id, value, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type, user_id) DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at`,
		string(token.Type), token.UserID, token.Value, token.CreatedAt,
	)
	if pg.IsForeignKeyViolationError(err) {
		return auth.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to replace token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, typ auth.TokenType, value string) (*auth.Token, error) {
	return s.scanToken(s.pool.QueryRow(ctx, `
		SELECT type, user_id, value, created_at FROM tokens WHERE type = $1 AND value = $2`,
		string(typ), value))
}

// ConsumeToken relies on DELETE ... RETURNING: only one transaction can
// delete the row.
func (s *Store) ConsumeToken(ctx context.Context, typ auth.TokenType, value string) (*auth.Token, error) {
	return s.scanToken(s.pool.QueryRow(ctx, `
		DELETE FROM tokens WHERE type = $1 AND value = $2
		RETURNING type, user_id, value, created_at`,
		string(typ), value))
}

func (s *Store) scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		t   auth.Token
		typ string
	)
	err := row.Scan(&typ, &t.UserID, &t.Value, &t.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	t.Type = auth.TokenType(typ)
	return &t, nil
}

func (s *Store) DeleteTokens(ctx context.Context, typ auth.TokenType, userID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE type = $1 AND user_id = $2`, string(typ), userID); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

func (s *Store) ReplaceSession(ctx context.Context, previousRefresh string, access auth.AccessToken, refresh auth.RefreshToken) error {
	if previousRefresh == "" {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sessions (user_id, client_id, access_token, refresh_token, access_expires_at, refresh_expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, client_id) DO UPDATE SET
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				access_expires_at = EXCLUDED.access_expires_at,
				refresh_expires_at = EXCLUDED.refresh_expires_at`,
			access.UserID, access.ClientID, access.Token, refresh.Token, access.ExpiresAt, refresh.ExpiresAt,
		)
		if pg.IsForeignKeyViolationError(err) {
			return auth.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to replace session: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			access_token = $4,
			refresh_token = $5,
			access_expires_at = $6,
			refresh_expires_at = $7
		WHERE user_id = $1 AND client_id = $2 AND refresh_token = $3`,
		access.UserID, access.ClientID, previousRefresh, access.Token, refresh.Token, access.ExpiresAt, refresh.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, token, clientID string) (*auth.AccessToken, error) {
	var at auth.AccessToken
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, client_id, access_token, access_expires_at
		FROM sessions WHERE access_token = $1 AND client_id = $2`,
		token, clientID,
	).Scan(&at.UserID, &at.ClientID, &at.Token, &at.ExpiresAt)
	if pg.IsNotFoundError(err) {
		return nil, auth.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return &at, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token, clientID string) (*auth.RefreshToken, error) {
	var rt auth.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, client_id, refresh_token, refresh_expires_at
		FROM sessions WHERE refresh_token = $1 AND client_id = $2`,
		token, clientID,
	).Scan(&rt.UserID, &rt.ClientID, &rt.Token, &rt.ExpiresAt)
	if pg.IsNotFoundError(err) {
		return nil, auth.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

func (s *Store) DeleteSessions(ctx context.Context, userID uuid.UUID, clientID string) error {
	var err error
	if clientID == "" {
		_, err = s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	} else {
		_, err = s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions past their refresh expiry and workflow tokens
// past their TTL.
func (s *Store) PurgeExpired(ctx context.Context, verificationTTL, resetTTL time.Duration) (int64, error) {
	now := s.now()
	var removed int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE refresh_expires_at <= $1`, now)
		if err != nil {
			return err
		}
		removed += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			DELETE FROM tokens
			WHERE (type = $1 AND created_at <= $2) OR (type = $3 AND created_at <= $4)`,
			string(auth.TokenVerification), now.Add(-verificationTTL),
			string(auth.TokenPasswordReset), now.Add(-resetTTL),
		)
		if err != nil {
			return err
		}
		removed += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	return removed, nil
}
