package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

// VaultStore holds vaults and their membership records. Every method takes
// the acting user and answers ErrNotFound for vaults outside that user's reach.
type VaultStore struct {
	db *sql.DB
}

func NewVaultStore(db *sql.DB) *VaultStore {
	return &VaultStore{db: db}
}

func scanVault(s scanner) (*model.Vault, error) {
	var v model.Vault
	err := s.Scan(&v.ID, &v.Name, &v.Description, &v.OwnerID, &v.OwnerName, &v.IsPublic,
		&v.MemberCount, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVaultMember(s scanner) (*model.VaultMember, error) {
	var m model.VaultMember
	err := s.Scan(&m.ID, &m.VaultID, &m.UserID, &m.UserName, &m.UserEmail, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const vaultSelect = `SELECT v.id, v.name, v.description, v.owner_id, u.name, v.is_public,
	(SELECT COUNT(*) FROM vault_members vm WHERE vm.vault_id = v.id), v.created_at, v.updated_at
	FROM vaults v JOIN users u ON u.id = v.owner_id`

const memberSelect = `SELECT m.id, m.vault_id, m.user_id, u.name, u.email, m.role, m.joined_at
	FROM vault_members m JOIN users u ON u.id = m.user_id`

type VaultInput struct {
	Name        string
	Description string
	IsPublic    bool
}

func (s *VaultStore) List(ctx context.Context, userID int64) ([]model.Vault, error) {
	p := access.VaultVisible(userID, "v.id")
	rows, err := s.db.QueryContext(ctx, vaultSelect+p.Where()+` ORDER BY v.created_at DESC, v.name ASC`, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	vaults := []model.Vault{}
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault: %w", err)
		}
		vaults = append(vaults, *v)
	}
	return vaults, rows.Err()
}

func (s *VaultStore) Get(ctx context.Context, userID int64, id string) (*model.Vault, error) {
	p := access.And(access.Eq("v.id", id), access.VaultVisible(userID, "v.id"))
	v, err := scanVault(s.db.QueryRowContext(ctx, vaultSelect+p.Where(), p.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vault: %w", err)
	}
	return v, nil
}

// Detail returns the vault with its member list.
func (s *VaultStore) Detail(ctx context.Context, userID int64, id string) (*model.VaultDetail, error) {
	v, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	members, err := s.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.VaultDetail{Vault: *v, Members: members}, nil
}

// Create stores a vault owned by ownerID. The owner is not added as a member row.
func (s *VaultStore) Create(ctx context.Context, ownerID int64, in VaultInput) (*model.Vault, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vaults (id, name, description, owner_id, is_public) VALUES (?, ?, ?, ?, ?)`,
		id, in.Name, in.Description, ownerID, in.IsPublic,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vault: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

func (s *VaultStore) Update(ctx context.Context, userID int64, id string, in VaultInput) (*model.Vault, error) {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "id"))
	args := append([]any{in.Name, in.Description, in.IsPublic}, p.Args...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE vaults SET name = ?, description = ?, is_public = ?, updated_at = CURRENT_TIMESTAMP`+p.Where(), args...)
	if err != nil {
		return nil, fmt.Errorf("update vault: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the vault and, through cascades, everything it contains.
func (s *VaultStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "id"))
	res, err := s.db.ExecContext(ctx, `DELETE FROM vaults`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	return affected(res)
}

// Join adds userID to a public vault as a viewer. Private vaults the user
// cannot see are reported as ErrNotFound; existing access is ErrConflict.
func (s *VaultStore) Join(ctx context.Context, userID int64, vaultID string) (*model.VaultMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	var public bool
	err = tx.QueryRowContext(ctx, `SELECT owner_id, is_public FROM vaults WHERE id = ?`, vaultID).Scan(&ownerID, &public)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vault: %w", err)
	}
	if ownerID == userID {
		return nil, fmt.Errorf("join own vault: %w", model.ErrConflict)
	}
	if !public {
		if err := checkVault(ctx, tx, userID, vaultID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("join vault: %w", model.ErrConflict)
	}

	id, err := insertMember(ctx, tx, vaultID, userID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	m, err := getMember(ctx, tx, vaultID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit join: %w", err)
	}
	return m, nil
}

// Leave removes the caller's own membership of vaultID.
func (s *VaultStore) Leave(ctx context.Context, userID int64, vaultID string) error {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM vaults WHERE id = ?`, vaultID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get vault: %w", err)
	}
	if ownerID == userID {
		return model.Invalid("vault", "the owner cannot leave the vault")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM vault_members WHERE vault_id = ? AND user_id = ?`, vaultID, userID)
	if err != nil {
		return fmt.Errorf("leave vault: %w", err)
	}
	return affected(res)
}

func (s *VaultStore) ListMembers(ctx context.Context, userID int64, vaultID string) ([]model.VaultMember, error) {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return nil, err
	}
	return s.listMembers(ctx, vaultID)
}

func (s *VaultStore) listMembers(ctx context.Context, vaultID string) ([]model.VaultMember, error) {
	rows, err := s.db.QueryContext(ctx, memberSelect+` WHERE m.vault_id = ? ORDER BY m.joined_at ASC, m.id ASC`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.VaultMember{}
	for rows.Next() {
		m, err := scanVaultMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// AddMember grants memberUserID access to vaultID. A second row for the same
// user is rejected by the unique index and reported as ErrConflict.
func (s *VaultStore) AddMember(ctx context.Context, userID int64, vaultID string, memberUserID int64, role string) (*model.VaultMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkVault(ctx, tx, userID, vaultID); err != nil {
		return nil, err
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, memberUserID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Invalid("user", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	id, err := insertMember(ctx, tx, vaultID, memberUserID, role)
	if err != nil {
		return nil, err
	}
	m, err := getMember(ctx, tx, vaultID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add member: %w", err)
	}
	return m, nil
}

func insertMember(ctx context.Context, q querier, vaultID string, userID int64, role string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO vault_members (vault_id, user_id, role) VALUES (?, ?, ?)`,
		vaultID, userID, role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("add member: %w", model.ErrConflict)
		}
		return 0, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func getMember(ctx context.Context, q querier, vaultID string, memberID int64) (*model.VaultMember, error) {
	m, err := scanVaultMember(q.QueryRowContext(ctx, memberSelect+` WHERE m.vault_id = ? AND m.id = ?`, vaultID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *VaultStore) GetMember(ctx context.Context, userID int64, vaultID string, memberID int64) (*model.VaultMember, error) {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return nil, err
	}
	return getMember(ctx, s.db, vaultID, memberID)
}

// UpdateMemberRole changes a member's role. The change is visible on the
// member's next request since roles are always read from the database.
func (s *VaultStore) UpdateMemberRole(ctx context.Context, userID int64, vaultID string, memberID int64, role string) (*model.VaultMember, error) {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE vault_members SET role = ? WHERE vault_id = ? AND id = ?`, role, vaultID, memberID)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return getMember(ctx, s.db, vaultID, memberID)
}

func (s *VaultStore) RemoveMember(ctx context.Context, userID int64, vaultID string, memberID int64) error {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM vault_members WHERE vault_id = ? AND id = ?`, vaultID, memberID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return affected(res)
}

// CanAccess reports ErrNotFound unless userID owns or belongs to vaultID.
func (s *VaultStore) CanAccess(ctx context.Context, userID int64, vaultID string) error {
	return checkVault(ctx, s.db, userID, vaultID)
}
