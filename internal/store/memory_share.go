package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/model"
)

// Shares are visible to the user who shared and the recipient.
const shareSelect = `SELECT s.id, s.memory_id, m.title, s.shared_by, ub.name, s.shared_with, uw.name, s.message, s.created_at
	FROM memory_shares s
	JOIN memories m ON m.id = s.memory_id
	JOIN users ub ON ub.id = s.shared_by
	JOIN users uw ON uw.id = s.shared_with`

func scanShare(s scanner) (*model.MemoryShare, error) {
	var sh model.MemoryShare
	err := s.Scan(&sh.ID, &sh.MemoryID, &sh.MemoryTitle, &sh.SharedBy, &sh.SharedByName,
		&sh.SharedWith, &sh.SharedWithName, &sh.Message, &sh.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *MemoryStore) ListShares(ctx context.Context, userID int64) ([]model.MemoryShare, error) {
	rows, err := s.db.QueryContext(ctx,
		shareSelect+` WHERE s.shared_by = ? OR s.shared_with = ? ORDER BY s.created_at DESC, s.rowid DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	shares := []model.MemoryShare{}
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, *sh)
	}
	return shares, rows.Err()
}

func (s *MemoryStore) GetShare(ctx context.Context, userID int64, id string) (*model.MemoryShare, error) {
	sh, err := scanShare(s.db.QueryRowContext(ctx,
		shareSelect+` WHERE s.id = ? AND (s.shared_by = ? OR s.shared_with = ?)`, id, userID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share: %w", err)
	}
	return sh, nil
}

// Share sends memoryID to sharedWith. Sharing the same memory with the same
// recipient twice is ErrConflict.
func (s *MemoryStore) Share(ctx context.Context, userID int64, memoryID string, sharedWith int64, message string) (*model.MemoryShare, error) {
	fields := map[string]string{}
	err := s.checkMemory(ctx, userID, memoryID)
	if errors.Is(err, model.ErrNotFound) {
		fields["memory"] = "memory not found"
	} else if err != nil {
		return nil, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, sharedWith).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		fields["shared_with"] = "user not found"
	} else if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if sharedWith == userID {
		fields["shared_with"] = "cannot share with yourself"
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Message: "invalid share", Fields: fields}
	}

	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_shares (id, memory_id, shared_by, shared_with, message) VALUES (?, ?, ?, ?, ?)`,
		id, memoryID, userID, sharedWith, message,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert share: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("insert share: %w", err)
	}
	return s.GetShare(ctx, userID, id)
}

func (s *MemoryStore) DeleteShare(ctx context.Context, userID int64, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_shares WHERE id = ? AND (shared_by = ? OR shared_with = ?)`, id, userID, userID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return affected(res)
}
