package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_Users(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage()
	ctx := t.Context()
	u := &User{ID: uuid.New(), Email: "a@example.com", Active: true}

	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &User{ID: uuid.New(), Email: "a@example.com"}), ErrEmailAlreadyExists)

	_, err := s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, s.SetVerified(ctx, uuid.New(), true), ErrUserNotFound)

	require.NoError(t, s.SetProviderIdentity(ctx, u.ID, "github", ProviderIdentity{ProviderID: "1"}))
	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Providers["github"].ProviderID)

	// Returned users are copies.
	got.Providers["github"] = ProviderIdentity{ProviderID: "tampered"}
	again, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", again.Providers["github"].ProviderID)
}
