package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

type PersonStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPersonStore(db *sql.DB) *PersonStore {
	return &PersonStore{db: db, now: time.Now}
}

const personSelect = `SELECT p.id, p.first_name, p.last_name, p.middle_name, p.birth_date, p.death_date,
	p.birth_place, p.death_place, p.email, p.phone, p.address, p.photo_url, p.documents,
	p.occupation, p.notes, p.is_living, p.vault_id, v.name, p.created_by, u.name,
	(SELECT COUNT(*) FROM person_memories pm WHERE pm.person_id = p.id), p.created_at, p.updated_at
	FROM persons p JOIN vaults v ON v.id = p.vault_id JOIN users u ON u.id = p.created_by`

func (s *PersonStore) scanPerson(sc scanner) (*model.Person, error) {
	var p model.Person
	var birth, death sql.NullString
	var docs string
	err := sc.Scan(&p.ID, &p.FirstName, &p.LastName, &p.MiddleName, &birth, &death,
		&p.BirthPlace, &p.DeathPlace, &p.Email, &p.Phone, &p.Address, &p.PhotoURL, &docs,
		&p.Occupation, &p.Notes, &p.IsLiving, &p.VaultID, &p.VaultName, &p.CreatedBy, &p.CreatedByName,
		&p.MemoriesCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BirthDate = model.DatePtr(birth)
	p.DeathDate = model.DatePtr(death)
	p.Documents = decodeList(docs)
	p.FullName = model.FullName(p.FirstName, p.MiddleName, p.LastName)
	if age, ok := model.Age(p.BirthDate, p.DeathDate, s.now()); ok {
		p.Age = &age
	}
	return &p, nil
}

func (s *PersonStore) collect(rows *sql.Rows) ([]model.Person, error) {
	defer rows.Close()
	persons := []model.Person{}
	for rows.Next() {
		p, err := s.scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, rows.Err()
}

type PersonInput struct {
	FirstName  string
	LastName   string
	MiddleName string
	BirthDate  *model.Date
	DeathDate  *model.Date
	BirthPlace string
	DeathPlace string
	Email      string
	Phone      string
	Address    string
	PhotoURL   string
	Documents  []string
	Occupation string
	Notes      string
	IsLiving   bool
	VaultID    string
}

type PersonFilter struct {
	VaultID  string
	IsLiving *bool
	Search   string
	Ordering string
}

var personOrdering = map[string]string{
	"first_name": "p.first_name",
	"last_name":  "p.last_name",
	"birth_date": "p.birth_date",
	"created_at": "p.created_at",
}

func (s *PersonStore) List(ctx context.Context, userID int64, f PersonFilter) ([]model.Person, error) {
	preds := []access.Predicate{access.VaultVisible(userID, "p.vault_id")}
	if f.VaultID != "" {
		preds = append(preds, access.Eq("p.vault_id", f.VaultID))
	}
	if f.IsLiving != nil {
		preds = append(preds, access.Eq("p.is_living", *f.IsLiving))
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		preds = append(preds, access.Predicate{
			SQL: `p.first_name LIKE ? ESCAPE '\' OR p.last_name LIKE ? ESCAPE '\' OR p.middle_name LIKE ? ESCAPE '\'` +
				` OR p.occupation LIKE ? ESCAPE '\'`,
			Args: []any{pat, pat, pat, pat},
		})
	}
	p := access.And(preds...)
	order := orderBy(f.Ordering, personOrdering, "p.last_name ASC") + ", p.first_name ASC, p.id ASC"
	rows, err := s.db.QueryContext(ctx, personSelect+p.Where()+` ORDER BY `+order, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	return s.collect(rows)
}

func (s *PersonStore) Get(ctx context.Context, userID int64, id string) (*model.Person, error) {
	p := access.And(access.Eq("p.id", id), access.VaultVisible(userID, "p.vault_id"))
	person, err := s.scanPerson(s.db.QueryRowContext(ctx, personSelect+p.Where(), p.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return person, nil
}

// Detail returns the person with its outgoing and incoming relations and
// its memory links.
func (s *PersonStore) Detail(ctx context.Context, userID int64, id string) (*model.PersonDetail, error) {
	person, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	from, err := queryRelations(ctx, s.db, access.Eq("r.person1_id", id))
	if err != nil {
		return nil, err
	}
	to, err := queryRelations(ctx, s.db, access.Eq("r.person2_id", id))
	if err != nil {
		return nil, err
	}
	memories, err := queryPersonMemories(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &model.PersonDetail{Person: *person, RelationsFrom: from, RelationsTo: to, Memories: memories}, nil
}

func (s *PersonStore) Create(ctx context.Context, userID int64, in PersonInput) (*model.Person, error) {
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (id, first_name, last_name, middle_name, birth_date, death_date,
			birth_place, death_place, email, phone, address, photo_url, documents, occupation,
			notes, is_living, vault_id, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.FirstName, in.LastName, in.MiddleName, model.DateValue(in.BirthDate), model.DateValue(in.DeathDate),
		in.BirthPlace, in.DeathPlace, in.Email, in.Phone, in.Address, in.PhotoURL, encodeList(in.Documents),
		in.Occupation, in.Notes, in.IsLiving, in.VaultID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Update replaces every editable field. Moving a person requires access to
// the destination vault.
func (s *PersonStore) Update(ctx context.Context, userID int64, id string, in PersonInput) (*model.Person, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE persons SET first_name = ?, last_name = ?, middle_name = ?, birth_date = ?, death_date = ?,
			birth_place = ?, death_place = ?, email = ?, phone = ?, address = ?, photo_url = ?,
			documents = ?, occupation = ?, notes = ?, is_living = ?, vault_id = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.FirstName, in.LastName, in.MiddleName, model.DateValue(in.BirthDate), model.DateValue(in.DeathDate),
		in.BirthPlace, in.DeathPlace, in.Email, in.Phone, in.Address, in.PhotoURL,
		encodeList(in.Documents), in.Occupation, in.Notes, in.IsLiving, in.VaultID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update person: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *PersonStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
	res, err := s.db.ExecContext(ctx, `DELETE FROM persons`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return affected(res)
}

// InVault lists every person of vaultID ordered by last then first name.
// Callers check vault access first.
func (s *PersonStore) InVault(ctx context.Context, vaultID string) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		personSelect+` WHERE p.vault_id = ? ORDER BY p.last_name ASC, p.first_name ASC, p.id ASC`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("list vault persons: %w", err)
	}
	return s.collect(rows)
}

// ByIDs loads those of the given persons visible to userID, ordered by last
// then first name. Persons in other vaults are left out.
func (s *PersonStore) ByIDs(ctx context.Context, userID int64, ids []string) ([]model.Person, error) {
	if len(ids) == 0 {
		return []model.Person{}, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	p := access.And(access.Predicate{SQL: `p.id IN (` + string(placeholders) + `)`, Args: args},
		access.VaultVisible(userID, "p.vault_id"))
	rows, err := s.db.QueryContext(ctx,
		personSelect+p.Where()+` ORDER BY p.last_name ASC, p.first_name ASC, p.id ASC`, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("list persons by id: %w", err)
	}
	return s.collect(rows)
}

// VaultPersonStats returns the living and deceased counts and the ages of
// persons with a known birth date.
func (s *PersonStore) VaultPersonStats(ctx context.Context, vaultID string) (living, deceased int, ages []int, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT is_living, birth_date, death_date FROM persons WHERE vault_id = ?`, vaultID)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("vault person stats: %w", err)
	}
	defer rows.Close()

	now := s.now()
	for rows.Next() {
		var isLiving bool
		var birth, death sql.NullString
		if err := rows.Scan(&isLiving, &birth, &death); err != nil {
			return 0, 0, nil, fmt.Errorf("scan person stats: %w", err)
		}
		if isLiving {
			living++
		} else {
			deceased++
		}
		if age, ok := model.Age(model.DatePtr(birth), model.DatePtr(death), now); ok {
			ages = append(ages, age)
		}
	}
	return living, deceased, ages, rows.Err()
}
