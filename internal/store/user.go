package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var birth sql.NullString
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.Phone,
		&birth, &u.AvatarURL, &u.IsPremium, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.BirthDate = model.DatePtr(birth)
	return &u, nil
}

const userCols = `id, email, username, name, password_hash, phone, birth_date, avatar_url, is_premium, created_at, updated_at`

// Create inserts a user. Duplicate email or username yields ErrConflict.
func (s *UserStore) Create(ctx context.Context, email, username, name, passwordHash string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, username, name, password_hash) VALUES (?, ?, ?, ?)`,
		email, username, name, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

type ProfileUpdate struct {
	Name      string
	Phone     string
	BirthDate *model.Date
	AvatarURL string
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int64, p ProfileUpdate) (*model.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, phone = ?, birth_date = ?, avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Name, p.Phone, model.DateValue(p.BirthDate), p.AvatarURL, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
