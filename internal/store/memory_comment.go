package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/model"
)

const commentSelect = `SELECT c.id, c.memory_id, c.text, c.user_id, u.name, u.avatar_url, c.created_at, c.updated_at
	FROM memory_comments c JOIN users u ON u.id = c.user_id`

func scanComment(s scanner) (*model.MemoryComment, error) {
	var c model.MemoryComment
	err := s.Scan(&c.ID, &c.MemoryID, &c.Text, &c.UserID, &c.UserName, &c.UserAvatar, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStore) listComments(ctx context.Context, memoryID string) ([]model.MemoryComment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE c.memory_id = ? ORDER BY c.created_at ASC, c.rowid ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []model.MemoryComment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (s *MemoryStore) ListComments(ctx context.Context, userID int64, memoryID string) ([]model.MemoryComment, error) {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	return s.listComments(ctx, memoryID)
}

func (s *MemoryStore) GetComment(ctx context.Context, userID int64, memoryID, id string) (*model.MemoryComment, error) {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.memory_id = ? AND c.id = ?`, memoryID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *MemoryStore) AddComment(ctx context.Context, userID int64, memoryID, text string) (*model.MemoryComment, error) {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_comments (id, memory_id, user_id, text) VALUES (?, ?, ?, ?)`,
		id, memoryID, userID, text,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return s.GetComment(ctx, userID, memoryID, id)
}

// UpdateComment edits a comment. Only its author may; anyone else sees ErrNotFound.
func (s *MemoryStore) UpdateComment(ctx context.Context, userID int64, memoryID, id, text string) (*model.MemoryComment, error) {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_comments SET text = ?, updated_at = CURRENT_TIMESTAMP WHERE memory_id = ? AND id = ? AND user_id = ?`,
		text, memoryID, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.GetComment(ctx, userID, memoryID, id)
}

func (s *MemoryStore) DeleteComment(ctx context.Context, userID int64, memoryID, id string) error {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_comments WHERE memory_id = ? AND id = ? AND user_id = ?`, memoryID, id, userID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return affected(res)
}
