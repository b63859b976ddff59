package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/authkit/pkg/auth"
	mongokit "github.com/dmitrymomot/authkit/pkg/mongo"
)

// Collection names.
const (
	UsersCollection    = "users"
	TokensCollection   = "tokens"
	SessionsCollection = "sessions"
)

// Store implements auth.Storage on MongoDB. Sessions and tokens use
// composite string ids so that the one-per-key rules are enforced by _id.
type Store struct {
	db       *mongo.Database
	users    *mongo.Collection
	tokens   *mongo.Collection
	sessions *mongo.Collection
	now      func() time.Time
}

var (
	_ auth.Storage = (*Store)(nil)
	_ auth.Purger  = (*Store)(nil)
)

func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		users:    db.Collection(UsersCollection),
		tokens:   db.Collection(TokensCollection),
		sessions: db.Collection(SessionsCollection),
		now:      time.Now,
	}
}

// Open creates the indexes and returns a ready Store.
func Open(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := New(db)
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique lookups the storage contract relies on.
// It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}

	if _, err := s.users.Indexes().CreateOne(ctx, unique("email")); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}
	if _, err := s.tokens.Indexes().CreateOne(ctx, unique("type", "value")); err != nil {
		return fmt.Errorf("failed to create tokens indexes: %w", err)
	}
	if _, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("access_token"),
		unique("refresh_token"),
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create sessions indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return mongokit.Healthcheck(s.db.Client())(ctx)
}

type providerDoc struct {
	ProviderID   string     `bson:"provider_id"`
	Token        string     `bson:"token,omitempty"`
	RefreshToken string     `bson:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `bson:"token_expiry,omitempty"`
}

type userDoc struct {
	ID           string                 `bson:"_id"`
	Email        string                 `bson:"email"`
	PasswordHash []byte                 `bson:"password_hash,omitempty"`
	Active       bool                   `bson:"active"`
	IsVerified   bool                   `bson:"is_verified"`
	Providers    map[string]providerDoc `bson:"providers"`
	CreatedAt    time.Time              `bson:"created_at"`
	UpdatedAt    time.Time              `bson:"updated_at"`
}

func toProviderDoc(p auth.ProviderIdentity) providerDoc {
	d := providerDoc{ProviderID: p.ProviderID, Token: p.Token, RefreshToken: p.RefreshToken}
	if !p.TokenExpiry.IsZero() {
		exp := p.TokenExpiry
		d.TokenExpiry = &exp
	}
	return d
}

func (d userDoc) user() (*auth.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	u := &auth.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Active:       d.Active,
		IsVerified:   d.IsVerified,
		Providers:    make(map[string]auth.ProviderIdentity, len(d.Providers)),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for name, p := range d.Providers {
		identity := auth.ProviderIdentity{ProviderID: p.ProviderID, Token: p.Token, RefreshToken: p.RefreshToken}
		if p.TokenExpiry != nil {
			identity.TokenExpiry = *p.TokenExpiry
		}
		u.Providers[name] = identity
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	doc := userDoc{
		ID:           user.ID.String(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Active:       user.Active,
		IsVerified:   user.IsVerified,
		Providers:    make(map[string]providerDoc, len(user.Providers)),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	for name, p := range user.Providers {
		doc.Providers[name] = toProviderDoc(p)
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongokit.IsDuplicateKeyError(err) {
			return auth.ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*auth.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if mongokit.IsNotFoundError(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.user()
}

func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error {
	return s.setUserFields(ctx, id, bson.D{{Key: "password_hash", Value: hash}})
}

func (s *Store) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return s.setUserFields(ctx, id, bson.D{{Key: "is_verified", Value: verified}})
}

func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.setUserFields(ctx, id, bson.D{{Key: "active", Value: active}})
}

func (s *Store) SetProviderIdentity(ctx context.Context, id uuid.UUID, provider string, identity auth.ProviderIdentity) error {
	return s.setUserFields(ctx, id, bson.D{{Key: "providers." + provider, Value: toProviderDoc(identity)}})
}

func (s *Store) setUserFields(ctx context.Context, id uuid.UUID, fields bson.D) error {
	fields = append(fields, bson.E{Key: "updated_at", Value: s.now()})
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: fields}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

type tokenDoc struct {
	ID        string    `bson:"_id"`
	Type      string    `bson:"type"`
	UserID    string    `bson:"user_id"`
	Value     string    `bson:"value"`
	CreatedAt time.Time `bson:"created_at"`
}

func tokenID(typ auth.TokenType, userID uuid.UUID) string {
	return string(typ) + ":" + userID.String()
}

func (d tokenDoc) token() (*auth.Token, error) {
	uid, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid token owner %q: %w", d.UserID, err)
	}
	return &auth.Token{Type: auth.TokenType(d.Type), UserID: uid, Value: d.Value, CreatedAt: d.CreatedAt}, nil
}

func (s *Store) ReplaceToken(ctx context.Context, token auth.Token) error {
	id := tokenID(token.Type, token.UserID)
	_, err := s.tokens.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		tokenDoc{ID: id, Type: string(token.Type), UserID: token.UserID.String(), Value: token.Value, CreatedAt: token.CreatedAt},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to replace token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, typ auth.TokenType, value string) (*auth.Token, error) {
	return s.decodeToken(s.tokens.FindOne(ctx, bson.D{
		{Key: "type", Value: string(typ)},
		{Key: "value", Value: value},
	}))
}

// ConsumeToken uses FindOneAndDelete, which is atomic per document.
func (s *Store) ConsumeToken(ctx context.Context, typ auth.TokenType, value string) (*auth.Token, error) {
	return s.decodeToken(s.tokens.FindOneAndDelete(ctx, bson.D{
		{Key: "type", Value: string(typ)},
		{Key: "value", Value: value},
	}))
}

func (s *Store) decodeToken(res *mongo.SingleResult) (*auth.Token, error) {
	var doc tokenDoc
	if err := res.Decode(&doc); err != nil {
		if mongokit.IsNotFoundError(err) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return doc.token()
}

func (s *Store) DeleteTokens(ctx context.Context, typ auth.TokenType, userID uuid.UUID) error {
	if _, err := s.tokens.DeleteOne(ctx, bson.D{{Key: "_id", Value: tokenID(typ, userID)}}); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

type sessionDoc struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"user_id"`
	ClientID         string    `bson:"client_id"`
	AccessToken      string    `bson:"access_token"`
	RefreshToken     string    `bson:"refresh_token"`
	AccessExpiresAt  time.Time `bson:"access_expires_at"`
	RefreshExpiresAt time.Time `bson:"refresh_expires_at"`
}

func sessionID(userID uuid.UUID, clientID string) string {
	return userID.String() + ":" + clientID
}

func (s *Store) ReplaceSession(ctx context.Context, previousRefresh string, access auth.AccessToken, refresh auth.RefreshToken) error {
	id := sessionID(access.UserID, access.ClientID)

	if previousRefresh != "" {
		res, err := s.sessions.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: id}, {Key: "refresh_token", Value: previousRefresh}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "access_token", Value: access.Token},
				{Key: "refresh_token", Value: refresh.Token},
				{Key: "access_expires_at", Value: access.ExpiresAt},
				{Key: "refresh_expires_at", Value: refresh.ExpiresAt},
			}}},
		)
		if err != nil {
			return fmt.Errorf("failed to rotate session: %w", err)
		}
		if res.MatchedCount == 0 {
			return auth.ErrSessionNotFound
		}
		return nil
	}

	doc := sessionDoc{
		ID:               id,
		UserID:           access.UserID.String(),
		ClientID:         access.ClientID,
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
	upsert := func() error {
		_, err := s.sessions.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
		return err
	}
	// Two concurrent upserts of a missing _id can both try to insert; the
	// loser sees a duplicate key and retries as a plain replace.
	err := upsert()
	if mongokit.IsDuplicateKeyError(err) {
		err = upsert()
	}
	if err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

func (s *Store) findSession(ctx context.Context, field, token, clientID string) (*sessionDoc, uuid.UUID, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{
		{Key: field, Value: token},
		{Key: "client_id", Value: clientID},
	}).Decode(&doc)
	if err != nil {
		if mongokit.IsNotFoundError(err) {
			return nil, uuid.Nil, auth.ErrSessionNotFound
		}
		return nil, uuid.Nil, fmt.Errorf("failed to get session: %w", err)
	}
	uid, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("invalid session owner %q: %w", doc.UserID, err)
	}
	return &doc, uid, nil
}

func (s *Store) GetAccessToken(ctx context.Context, token, clientID string) (*auth.AccessToken, error) {
	doc, uid, err := s.findSession(ctx, "access_token", token, clientID)
	if err != nil {
		return nil, err
	}
	return &auth.AccessToken{UserID: uid, ClientID: doc.ClientID, Token: doc.AccessToken, ExpiresAt: doc.AccessExpiresAt}, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token, clientID string) (*auth.RefreshToken, error) {
	doc, uid, err := s.findSession(ctx, "refresh_token", token, clientID)
	if err != nil {
		return nil, err
	}
	return &auth.RefreshToken{UserID: uid, ClientID: doc.ClientID, Token: doc.RefreshToken, ExpiresAt: doc.RefreshExpiresAt}, nil
}

func (s *Store) DeleteSessions(ctx context.Context, userID uuid.UUID, clientID string) error {
	filter := bson.D{{Key: "user_id", Value: userID.String()}}
	if clientID != "" {
		filter = bson.D{{Key: "_id", Value: sessionID(userID, clientID)}}
	}
	if _, err := s.sessions.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpired(ctx context.Context, verificationTTL, resetTTL time.Duration) (int64, error) {
	now := s.now()

	sessions, err := s.sessions.DeleteMany(ctx, bson.D{
		{Key: "refresh_expires_at", Value: bson.D{{Key: "$lte", Value: now}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	tokens, err := s.tokens.DeleteMany(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "type", Value: string(auth.TokenVerification)}, {Key: "created_at", Value: bson.D{{Key: "$lte", Value: now.Add(-verificationTTL)}}}},
		bson.D{{Key: "type", Value: string(auth.TokenPasswordReset)}, {Key: "created_at", Value: bson.D{{Key: "$lte", Value: now.Add(-resetTTL)}}}},
	}}})
	if err != nil {
		return sessions.DeletedCount, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return sessions.DeletedCount + tokens.DeletedCount, nil
}
