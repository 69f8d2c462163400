package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

// PersonMemoryStore links persons to the memories they appear in.
type PersonMemoryStore struct {
	db *sql.DB
}

func NewPersonMemoryStore(db *sql.DB) *PersonMemoryStore {
	return &PersonMemoryStore{db: db}
}

const personMemorySelect = `SELECT pm.id, pm.person_id, pm.memory_id, m.title, m.type, m.photo_url, pm.role, pm.created_at
	FROM person_memories pm JOIN memories m ON m.id = pm.memory_id`

func scanPersonMemory(s scanner) (*model.PersonMemory, error) {
	var pm model.PersonMemory
	err := s.Scan(&pm.ID, &pm.PersonID, &pm.MemoryID, &pm.MemoryTitle, &pm.MemoryType, &pm.MemoryPhoto, &pm.Role, &pm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func queryPersonMemories(ctx context.Context, q querier, personID string) ([]model.PersonMemory, error) {
	rows, err := q.QueryContext(ctx, personMemorySelect+` WHERE pm.person_id = ? ORDER BY pm.created_at DESC, pm.rowid DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("list person memories: %w", err)
	}
	defer rows.Close()

	links := []model.PersonMemory{}
	for rows.Next() {
		pm, err := scanPersonMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person memory: %w", err)
		}
		links = append(links, *pm)
	}
	return links, rows.Err()
}

func (s *PersonMemoryStore) checkPerson(ctx context.Context, userID int64, personID string) error {
	p := access.And(access.Eq("id", personID), access.VaultVisible(userID, "vault_id"))
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM persons`+p.Where(), p.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check person: %w", err)
	}
	return nil
}

func (s *PersonMemoryStore) List(ctx context.Context, userID int64, personID string) ([]model.PersonMemory, error) {
	if err := s.checkPerson(ctx, userID, personID); err != nil {
		return nil, err
	}
	return queryPersonMemories(ctx, s.db, personID)
}

func (s *PersonMemoryStore) Get(ctx context.Context, userID int64, personID, id string) (*model.PersonMemory, error) {
	if err := s.checkPerson(ctx, userID, personID); err != nil {
		return nil, err
	}
	pm, err := scanPersonMemory(s.db.QueryRowContext(ctx, personMemorySelect+` WHERE pm.person_id = ? AND pm.id = ?`, personID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person memory: %w", err)
	}
	return pm, nil
}

// Create links personID to memoryID. The memory must be visible to the user;
// linking the same memory twice is ErrConflict.
func (s *PersonMemoryStore) Create(ctx context.Context, userID int64, personID, memoryID, role string) (*model.PersonMemory, error) {
	if err := s.checkPerson(ctx, userID, personID); err != nil {
		return nil, err
	}
	p := access.And(access.Eq("id", memoryID), access.VaultVisible(userID, "vault_id"))
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories`+p.Where(), p.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Invalid("memory", "memory not found")
	}
	if err != nil {
		return nil, fmt.Errorf("check memory: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO person_memories (id, person_id, memory_id, role) VALUES (?, ?, ?, ?)`,
		id, personID, memoryID, role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert person memory: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("insert person memory: %w", err)
	}
	return s.Get(ctx, userID, personID, id)
}

func (s *PersonMemoryStore) UpdateRole(ctx context.Context, userID int64, personID, id, role string) (*model.PersonMemory, error) {
	if err := s.checkPerson(ctx, userID, personID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE person_memories SET role = ? WHERE person_id = ? AND id = ?`, role, personID, id)
	if err != nil {
		return nil, fmt.Errorf("update person memory: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, personID, id)
}

func (s *PersonMemoryStore) Delete(ctx context.Context, userID int64, personID, id string) error {
	if err := s.checkPerson(ctx, userID, personID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM person_memories WHERE person_id = ? AND id = ?`, personID, id)
	if err != nil {
		return fmt.Errorf("delete person memory: %w", err)
	}
	return affected(res)
}
