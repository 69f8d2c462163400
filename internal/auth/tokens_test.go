package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nonna/internal/model"
)

func TestIssuerRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Minute, time.Hour)

	access, err := iss.Access(42)
	require.NoError(t, err)
	require.NotEmpty(t, access.ID)

	userID, claims, err := iss.Parse(access.Token, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
	require.Equal(t, access.ID, claims.ID)
}

func TestIssuerRejects(t *testing.T) {
	iss := NewIssuer("secret", time.Minute, time.Hour)
	access, err := iss.Access(1)
	require.NoError(t, err)
	refresh, err := iss.Refresh(1)
	require.NoError(t, err)

	t.Run("wrong type", func(t *testing.T) {
		_, _, err := iss.Parse(refresh.Token, TypeAccess)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(access.Token, ".")
		parts[2] = strings.Repeat("A", len(parts[2]))
		_, _, err := iss.Parse(strings.Join(parts, "."), TypeAccess)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewIssuer("other", time.Minute, time.Hour)
		_, _, err := other.Parse(access.Token, TypeAccess)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewIssuer("secret", time.Minute, time.Hour)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
		old, err := past.Access(1)
		require.NoError(t, err)
		_, _, err = iss.Parse(old.Token, TypeAccess)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := iss.Parse("not-a-token", TypeAccess)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pasta123")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "pasta123"))
	require.False(t, CheckPassword(hash, "pasta124"))
}
