package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

// RelationStore holds directed, typed edges between persons. A relation is
// visible when either endpoint is. Inverse edges are never created implicitly.
type RelationStore struct {
	db *sql.DB
}

func NewRelationStore(db *sql.DB) *RelationStore {
	return &RelationStore{db: db}
}

const relationSelect = `SELECT r.id, r.person1_id, TRIM(p1.first_name || ' ' || p1.last_name),
	r.person2_id, TRIM(p2.first_name || ' ' || p2.last_name), r.relation_type,
	r.start_date, r.end_date, r.notes, r.created_at, r.updated_at
	FROM relations r
	JOIN persons p1 ON p1.id = r.person1_id
	JOIN persons p2 ON p2.id = r.person2_id`

func scanRelation(s scanner) (*model.Relation, error) {
	var r model.Relation
	var start, end sql.NullString
	err := s.Scan(&r.ID, &r.Person1ID, &r.Person1Name, &r.Person2ID, &r.Person2Name, &r.RelationType,
		&start, &end, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.StartDate = model.DatePtr(start)
	r.EndDate = model.DatePtr(end)
	return &r, nil
}

func queryRelations(ctx context.Context, q querier, p access.Predicate) ([]model.Relation, error) {
	rows, err := q.QueryContext(ctx, relationSelect+p.Where()+` ORDER BY r.created_at ASC, r.rowid ASC`, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	relations := []model.Relation{}
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, *r)
	}
	return relations, rows.Err()
}

type RelationInput struct {
	Person1ID    string
	Person2ID    string
	RelationType model.RelationType
	StartDate    *model.Date
	EndDate      *model.Date
	Notes        string
}

type RelationFilter struct {
	RelationType model.RelationType
	Person1ID    string
	Person2ID    string
}

func (s *RelationStore) List(ctx context.Context, userID int64, f RelationFilter) ([]model.Relation, error) {
	preds := []access.Predicate{access.RelationVisible(userID, "r")}
	if f.RelationType != "" {
		preds = append(preds, access.Eq("r.relation_type", string(f.RelationType)))
	}
	if f.Person1ID != "" {
		preds = append(preds, access.Eq("r.person1_id", f.Person1ID))
	}
	if f.Person2ID != "" {
		preds = append(preds, access.Eq("r.person2_id", f.Person2ID))
	}
	return queryRelations(ctx, s.db, access.And(preds...))
}

func (s *RelationStore) Get(ctx context.Context, userID int64, id string) (*model.Relation, error) {
	p := access.And(access.Eq("r.id", id), access.RelationVisible(userID, "r"))
	r, err := scanRelation(s.db.QueryRowContext(ctx, relationSelect+p.Where(), p.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get relation: %w", err)
	}
	return r, nil
}

// checkEndpoints rejects endpoints the user cannot see with the same message
// used for persons that do not exist.
func (s *RelationStore) checkEndpoints(ctx context.Context, userID int64, in RelationInput) error {
	fields := map[string]string{}
	for field, id := range map[string]string{"person1": in.Person1ID, "person2": in.Person2ID} {
		p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM persons`+p.Where(), p.Args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			fields[field] = "person not found"
			continue
		}
		if err != nil {
			return fmt.Errorf("check relation endpoint: %w", err)
		}
	}
	if in.Person1ID != "" && in.Person1ID == in.Person2ID {
		fields["person2"] = "a person cannot be related to itself"
	}
	if len(fields) > 0 {
		return &model.ValidationError{Message: "invalid relation", Fields: fields}
	}
	return nil
}

// Create stores a relation. A duplicate (person1, person2, type) triple is
// ErrConflict.
func (s *RelationStore) Create(ctx context.Context, userID int64, in RelationInput) (*model.Relation, error) {
	if err := s.checkEndpoints(ctx, userID, in); err != nil {
		return nil, err
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (id, person1_id, person2_id, relation_type, start_date, end_date, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, in.Person1ID, in.Person2ID, string(in.RelationType),
		model.DateValue(in.StartDate), model.DateValue(in.EndDate), in.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert relation: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("insert relation: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *RelationStore) Update(ctx context.Context, userID int64, id string, in RelationInput) (*model.Relation, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.checkEndpoints(ctx, userID, in); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE relations SET person1_id = ?, person2_id = ?, relation_type = ?, start_date = ?,
			end_date = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Person1ID, in.Person2ID, string(in.RelationType),
		model.DateValue(in.StartDate), model.DateValue(in.EndDate), in.Notes, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update relation: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("update relation: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *RelationStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.RelationVisible(userID, ""))
	res, err := s.db.ExecContext(ctx, `DELETE FROM relations`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return affected(res)
}

// TouchingVault lists relations with at least one endpoint in vaultID.
// Callers check vault access first.
func (s *RelationStore) TouchingVault(ctx context.Context, vaultID string) ([]model.Relation, error) {
	return queryRelations(ctx, s.db, access.Or(access.Eq("p1.vault_id", vaultID), access.Eq("p2.vault_id", vaultID)))
}

// Incident lists relations where personID is either endpoint.
func (s *RelationStore) Incident(ctx context.Context, personID string) ([]model.Relation, error) {
	return queryRelations(ctx, s.db, access.Or(access.Eq("r.person1_id", personID), access.Eq("r.person2_id", personID)))
}

// CountByType groups the relations touching vaultID by type.
func (s *RelationStore) CountByType(ctx context.Context, vaultID string) (map[model.RelationType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.relation_type, COUNT(*) FROM relations r
		 JOIN persons p1 ON p1.id = r.person1_id
		 JOIN persons p2 ON p2.id = r.person2_id
		 WHERE p1.vault_id = ? OR p2.vault_id = ?
		 GROUP BY r.relation_type`, vaultID, vaultID)
	if err != nil {
		return nil, fmt.Errorf("count relations: %w", err)
	}
	defer rows.Close()

	counts := map[model.RelationType]int{}
	for rows.Next() {
		var t model.RelationType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan relation count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
