package auth

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type tokenKey struct {
	typ    TokenType
	userID uuid.UUID
}

type tokenValueKey struct {
	typ   TokenType
	value string
}

type sessionKey struct {
	userID   uuid.UUID
	clientID string
}

type sessionRow struct {
	access  AccessToken
	refresh RefreshToken
}

// MemoryStorage is an in-process Storage guarded by a single mutex.
// Every method is atomic with respect to the others.
type MemoryStorage struct {
	mu sync.Mutex

	users   map[uuid.UUID]*User
	byEmail map[string]uuid.UUID

	tokens       map[tokenKey]Token
	tokenByValue map[tokenValueKey]tokenKey

	sessions  map[sessionKey]sessionRow
	byAccess  map[string]sessionKey
	byRefresh map[string]sessionKey

	now func() time.Time
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Purger  = (*MemoryStorage)(nil)
)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:        make(map[uuid.UUID]*User),
		byEmail:      make(map[string]uuid.UUID),
		tokens:       make(map[tokenKey]Token),
		tokenByValue: make(map[tokenValueKey]tokenKey),
		sessions:     make(map[sessionKey]sessionRow),
		byAccess:     make(map[string]sessionKey),
		byRefresh:    make(map[string]sessionKey),
		now:          time.Now,
	}
}

func (s *MemoryStorage) Ping(context.Context) error { return nil }

func (s *MemoryStorage) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailAlreadyExists
	}
	if _, ok := s.users[user.ID]; ok {
		return ErrEmailAlreadyExists
	}
	c := user.Clone()
	if c.Providers == nil {
		c.Providers = map[string]ProviderIdentity{}
	}
	s.users[c.ID] = c
	s.byEmail[c.Email] = c.ID
	return nil
}

func (s *MemoryStorage) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *MemoryStorage) UpdatePassword(_ context.Context, id uuid.UUID, hash []byte) error {
	return s.updateUser(id, func(u *User) { u.PasswordHash = append([]byte(nil), hash...) })
}

func (s *MemoryStorage) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	return s.updateUser(id, func(u *User) { u.IsVerified = verified })
}

func (s *MemoryStorage) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return s.updateUser(id, func(u *User) { u.Active = active })
}

func (s *MemoryStorage) SetProviderIdentity(_ context.Context, id uuid.UUID, provider string, identity ProviderIdentity) error {
	return s.updateUser(id, func(u *User) {
		providers := maps.Clone(u.Providers)
		if providers == nil {
			providers = map[string]ProviderIdentity{}
		}
		providers[provider] = identity
		u.Providers = providers
	})
}

func (s *MemoryStorage) updateUser(id uuid.UUID, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStorage) ReplaceToken(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{typ: token.Type, userID: token.UserID}
	if prev, ok := s.tokens[key]; ok {
		delete(s.tokenByValue, tokenValueKey{typ: prev.Type, value: prev.Value})
	}
	s.tokens[key] = token
	s.tokenByValue[tokenValueKey{typ: token.Type, value: token.Value}] = key
	return nil
}

func (s *MemoryStorage) GetToken(_ context.Context, typ TokenType, value string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokenByValue[tokenValueKey{typ: typ, value: value}]
	if !ok {
		return nil, ErrTokenNotFound
	}
	t := s.tokens[key]
	return &t, nil
}

func (s *MemoryStorage) ConsumeToken(_ context.Context, typ TokenType, value string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vk := tokenValueKey{typ: typ, value: value}
	key, ok := s.tokenByValue[vk]
	if !ok {
		return nil, ErrTokenNotFound
	}
	t := s.tokens[key]
	delete(s.tokens, key)
	delete(s.tokenByValue, vk)
	return &t, nil
}

func (s *MemoryStorage) DeleteTokens(_ context.Context, typ TokenType, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{typ: typ, userID: userID}
	if t, ok := s.tokens[key]; ok {
		delete(s.tokenByValue, tokenValueKey{typ: typ, value: t.Value})
		delete(s.tokens, key)
	}
	return nil
}

func (s *MemoryStorage) ReplaceSession(_ context.Context, previousRefresh string, access AccessToken, refresh RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{userID: access.UserID, clientID: access.ClientID}
	prev, exists := s.sessions[key]
	if previousRefresh != "" && (!exists || prev.refresh.Token != previousRefresh) {
		return ErrSessionNotFound
	}
	if exists {
		delete(s.byAccess, prev.access.Token)
		delete(s.byRefresh, prev.refresh.Token)
	}

	s.sessions[key] = sessionRow{access: access, refresh: refresh}
	s.byAccess[access.Token] = key
	s.byRefresh[refresh.Token] = key
	return nil
}

func (s *MemoryStorage) GetAccessToken(_ context.Context, token, clientID string) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byAccess[token]
	if !ok || key.clientID != clientID {
		return nil, ErrSessionNotFound
	}
	at := s.sessions[key].access
	return &at, nil
}

func (s *MemoryStorage) GetRefreshToken(_ context.Context, token, clientID string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byRefresh[token]
	if !ok || key.clientID != clientID {
		return nil, ErrSessionNotFound
	}
	rt := s.sessions[key].refresh
	return &rt, nil
}

func (s *MemoryStorage) DeleteSessions(_ context.Context, userID uuid.UUID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, row := range s.sessions {
		if key.userID != userID || (clientID != "" && key.clientID != clientID) {
			continue
		}
		delete(s.byAccess, row.access.Token)
		delete(s.byRefresh, row.refresh.Token)
		delete(s.sessions, key)
	}
	return nil
}

// PurgeExpired drops expired sessions and tokens older than their TTLs.
// It returns the number of removed records.
func (s *MemoryStorage) PurgeExpired(_ context.Context, verificationTTL, resetTTL time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, row := range s.sessions {
		if row.refresh.Expired(now) {
			delete(s.byAccess, row.access.Token)
			delete(s.byRefresh, row.refresh.Token)
			delete(s.sessions, key)
			removed++
		}
	}
	for key, t := range s.tokens {
		ttl := verificationTTL
		if t.Type == TokenPasswordReset {
			ttl = resetTTL
		}
		if t.Expired(ttl, now) {
			delete(s.tokenByValue, tokenValueKey{typ: t.Type, value: t.Value})
			delete(s.tokens, key)
			removed++
		}
	}
	return removed, nil
}
