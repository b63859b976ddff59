// Package storetest holds the behaviour every auth.Storage implementation
// must show. Backends call Run from their own tests.
package storetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/auth"
)

// Factory returns an empty or shared store. Run never assumes the store is
// empty: every case works on fresh ids and emails.
type Factory func(t *testing.T) auth.Storage

func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("ProviderIdentities", func(t *testing.T) { testProviderIdentities(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("ConsumeTokenOnce", func(t *testing.T) { testConsumeTokenOnce(t, newStore(t)) })
	t.Run("ConcurrentLogins", func(t *testing.T) { testConcurrentLogins(t, newStore(t)) })
	t.Run("RotationCompareAndDelete", func(t *testing.T) { testRotation(t, newStore(t)) })
	t.Run("DeleteSessions", func(t *testing.T) { testDeleteSessions(t, newStore(t)) })
	t.Run("PurgeExpired", func(t *testing.T) {
		store := newStore(t)
		purger, ok := store.(auth.Purger)
		if !ok {
			t.Skip("store does not purge")
		}
		testPurge(t, store, purger)
	})
}

func newUser(t *testing.T, s auth.Storage) *auth.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &auth.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: []byte("hash"),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(t.Context(), u))
	return u
}

func pair(userID uuid.UUID, clientID, suffix string, exp time.Time) (auth.AccessToken, auth.RefreshToken) {
	return auth.AccessToken{UserID: userID, ClientID: clientID, Token: "a-" + suffix, ExpiresAt: exp},
		auth.RefreshToken{UserID: userID, ClientID: clientID, Token: "r-" + suffix, ExpiresAt: exp}
}

func testUsers(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)

	dup := &auth.User{ID: uuid.New(), Email: u.Email, Active: true}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), auth.ErrEmailAlreadyExists)

	got, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []byte("hash"), got.PasswordHash)
	assert.True(t, got.Active)
	assert.False(t, got.IsVerified)

	require.NoError(t, s.SetVerified(ctx, u.ID, true))
	require.NoError(t, s.SetActive(ctx, u.ID, false))
	require.NoError(t, s.UpdatePassword(ctx, u.ID, []byte("new-hash")))

	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.False(t, got.Active)
	assert.Equal(t, []byte("new-hash"), got.PasswordHash)

	missing := uuid.New()
	_, err = s.GetUserByID(ctx, missing)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, uuid.NewString()+"@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.ErrorIs(t, s.SetActive(ctx, missing, true), auth.ErrUserNotFound)
}

func testProviderIdentities(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	require.NoError(t, s.SetProviderIdentity(ctx, u.ID, "github", auth.ProviderIdentity{
		ProviderID: "42", Token: "t1", RefreshToken: "rt1", TokenExpiry: expiry,
	}))
	require.NoError(t, s.SetProviderIdentity(ctx, u.ID, "google", auth.ProviderIdentity{ProviderID: "g-1"}))
	require.NoError(t, s.SetProviderIdentity(ctx, u.ID, "github", auth.ProviderIdentity{ProviderID: "42", Token: "t2"}))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Providers, 2)
	gh, ok := got.Provider("github")
	require.True(t, ok)
	assert.Equal(t, "42", gh.ProviderID)
	assert.Equal(t, "t2", gh.Token, "identity is replaced, not merged")
	assert.True(t, gh.TokenExpiry.IsZero())

	assert.ErrorIs(t, s.SetProviderIdentity(ctx, uuid.New(), "github", auth.ProviderIdentity{ProviderID: "x"}), auth.ErrUserNotFound)
}

func testTokens(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	now := time.Now().UTC().Truncate(time.Millisecond)
	v1, v2, r1 := uuid.NewString(), uuid.NewString(), uuid.NewString()

	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenVerification, UserID: u.ID, Value: v1, CreatedAt: now}))
	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenVerification, UserID: u.ID, Value: v2, CreatedAt: now}))
	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenPasswordReset, UserID: u.ID, Value: r1, CreatedAt: now}))

	_, err := s.GetToken(ctx, auth.TokenVerification, v1)
	assert.ErrorIs(t, err, auth.ErrTokenNotFound, "replaced token is gone")

	tok, err := s.GetToken(ctx, auth.TokenVerification, v2)
	require.NoError(t, err)
	assert.Equal(t, u.ID, tok.UserID)
	assert.Equal(t, auth.TokenVerification, tok.Type)
	assert.WithinDuration(t, now, tok.CreatedAt, time.Millisecond)

	_, err = s.GetToken(ctx, auth.TokenPasswordReset, v2)
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)

	require.NoError(t, s.DeleteTokens(ctx, auth.TokenPasswordReset, u.ID))
	_, err = s.GetToken(ctx, auth.TokenPasswordReset, r1)
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
	_, err = s.GetToken(ctx, auth.TokenVerification, v2)
	assert.NoError(t, err, "other types survive")
}

func testConsumeTokenOnce(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	value := uuid.NewString()
	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenPasswordReset, UserID: u.ID, Value: value, CreatedAt: time.Now()}))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeToken(ctx, auth.TokenPasswordReset, value)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, auth.ErrTokenNotFound)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testConcurrentLogins(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	exp := time.Now().Add(time.Hour)
	prefix := uuid.NewString()

	const workers = 16
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, r := pair(u.ID, "web", fmt.Sprintf("%s-%d", prefix, i), exp)
			assert.NoError(t, s.ReplaceSession(ctx, "", a, r))
		}()
	}
	wg.Wait()

	live := 0
	for i := range workers {
		a, r := pair(u.ID, "web", fmt.Sprintf("%s-%d", prefix, i), exp)
		if _, err := s.GetAccessToken(ctx, a.Token, "web"); err == nil {
			live++
			_, err := s.GetRefreshToken(ctx, r.Token, "web")
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, live, "one pair per user and client")
}

func testRotation(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	exp := time.Now().Add(time.Hour)
	prefix := uuid.NewString()

	a0, r0 := pair(u.ID, "web", prefix+"-0", exp)
	require.NoError(t, s.ReplaceSession(ctx, "", a0, r0))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, r := pair(u.ID, "web", fmt.Sprintf("%s-%d", prefix, i+1), exp)
			err := s.ReplaceSession(ctx, r0.Token, a, r)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, auth.ErrSessionNotFound)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	_, err := s.GetRefreshToken(ctx, r0.Token, "web")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
	_, err = s.GetAccessToken(ctx, a0.Token, "web")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func testDeleteSessions(t *testing.T, s auth.Storage) {
	ctx := t.Context()
	u := newUser(t, s)
	exp := time.Now().Add(time.Hour)
	prefix := uuid.NewString()

	for _, c := range []string{"web", "ios", "cli"} {
		a, r := pair(u.ID, c, prefix+c, exp)
		require.NoError(t, s.ReplaceSession(ctx, "", a, r))
	}

	require.NoError(t, s.DeleteSessions(ctx, u.ID, "web"))
	_, err := s.GetAccessToken(ctx, "a-"+prefix+"web", "web")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
	_, err = s.GetAccessToken(ctx, "a-"+prefix+"ios", "ios")
	assert.NoError(t, err)
	_, err = s.GetAccessToken(ctx, "a-"+prefix+"ios", "web")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound, "client id must match")

	require.NoError(t, s.DeleteSessions(ctx, u.ID, ""))
	_, err = s.GetRefreshToken(ctx, "r-"+prefix+"cli", "cli")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func testPurge(t *testing.T, s auth.Storage, p auth.Purger) {
	ctx := t.Context()
	u := newUser(t, s)
	now := time.Now()
	prefix := uuid.NewString()

	a, r := pair(u.ID, "old", prefix+"old", now.Add(-time.Minute))
	require.NoError(t, s.ReplaceSession(ctx, "", a, r))
	a, r = pair(u.ID, "new", prefix+"new", now.Add(time.Hour))
	require.NoError(t, s.ReplaceSession(ctx, "", a, r))

	reset, verify := uuid.NewString(), uuid.NewString()
	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenPasswordReset, UserID: u.ID, Value: reset, CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.ReplaceToken(ctx, auth.Token{Type: auth.TokenVerification, UserID: u.ID, Value: verify, CreatedAt: now.Add(-2 * time.Hour)}))

	removed, err := p.PurgeExpired(ctx, 24*time.Hour, time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(2))

	_, err = s.GetRefreshToken(ctx, "r-"+prefix+"old", "old")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
	_, err = s.GetToken(ctx, auth.TokenPasswordReset, reset)
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)

	_, err = s.GetRefreshToken(ctx, "r-"+prefix+"new", "new")
	assert.NoError(t, err)
	_, err = s.GetToken(ctx, auth.TokenVerification, verify)
	assert.NoError(t, err)
}
