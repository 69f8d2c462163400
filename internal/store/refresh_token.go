package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/nonna/internal/model"
)

// RefreshTokenStore records issued refresh tokens so they can be revoked.
type RefreshTokenStore struct {
	db *sql.DB
}

func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func (s *RefreshTokenStore) Create(ctx context.Context, jti string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (jti, user_id, expires_at) VALUES (?, ?, ?)`,
		jti, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Active reports whether jti belongs to userID, is unrevoked and unexpired.
func (s *RefreshTokenStore) Active(ctx context.Context, jti string, userID int64) (bool, error) {
	var t model.RefreshToken
	var revoked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, jti, user_id, expires_at, revoked_at, created_at FROM refresh_tokens WHERE jti = ?`, jti,
	).Scan(&t.ID, &t.JTI, &t.UserID, &t.ExpiresAt, &revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get refresh token: %w", err)
	}
	if revoked.Valid || t.UserID != userID {
		return false, nil
	}
	return time.Now().Before(t.ExpiresAt), nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE jti = ? AND revoked_at IS NULL`, jti,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
