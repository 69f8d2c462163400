package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nonna/internal/model"
)

func TestUserCreateAndGet(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()

	u, err := env.users.Create(ctx, "nonna@example.com", "nonna", "Nonna Rossi", "hash")
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.Equal(t, "nonna", u.Username)

	got, err := env.users.GetByEmail(ctx, "NONNA@example.com")
	require.NoError(t, err, "email lookup is case-insensitive")
	require.Equal(t, u.ID, got.ID)

	_, err = env.users.GetByID(ctx, 999)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserDuplicateEmailConflict(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()

	_, err := env.users.Create(ctx, "a@example.com", "a", "A", "hash")
	require.NoError(t, err)
	_, err = env.users.Create(ctx, "a@example.com", "b", "B", "hash")
	require.ErrorIs(t, err, model.ErrConflict)
	_, err = env.users.Create(ctx, "c@example.com", "a", "C", "hash")
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestUserUpdateProfile(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	u := env.user(t, "maria")

	birth := model.NewDate(1950, time.May, 3)
	updated, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Name: "Maria R", Phone: "555", BirthDate: &birth})
	require.NoError(t, err)
	require.Equal(t, "Maria R", updated.Name)
	require.NotNil(t, updated.BirthDate)
	require.Equal(t, "1950-05-03", updated.BirthDate.String())

	_, err = env.users.UpdateProfile(ctx, 999, ProfileUpdate{Name: "x"})
	require.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRefreshTokenLifecycle(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	u := env.user(t, "luca")

	require.NoError(t, env.tokens.Create(ctx, "jti-1", u.ID, time.Now().Add(time.Hour)))
	ok, err := env.tokens.Active(ctx, "jti-1", u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.tokens.Active(ctx, "jti-1", u.ID+1)
	require.NoError(t, err)
	require.False(t, ok, "token bound to another user")

	require.NoError(t, env.tokens.Revoke(ctx, "jti-1"))
	ok, err = env.tokens.Active(ctx, "jti-1", u.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, env.tokens.Create(ctx, "jti-2", u.ID, time.Now().Add(-time.Minute)))
	ok, err = env.tokens.Active(ctx, "jti-2", u.ID)
	require.NoError(t, err)
	require.False(t, ok, "expired")

	n, err := env.tokens.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
