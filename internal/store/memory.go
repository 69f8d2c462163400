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

type MemoryStore struct {
	db *sql.DB
}

func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// memorySelect takes the viewing user as its first argument for is_liked.
const memorySelect = `SELECT m.id, m.title, m.description, m.type, m.photo_url, m.audio_url, m.video_url,
	m.date_taken, m.location, m.tags, m.vault_id, v.name, m.created_by, u.name,
	(SELECT COUNT(*) FROM memory_likes l WHERE l.memory_id = m.id),
	(SELECT COUNT(*) FROM memory_comments c WHERE c.memory_id = m.id),
	EXISTS (SELECT 1 FROM memory_likes l WHERE l.memory_id = m.id AND l.user_id = ?),
	m.created_at, m.updated_at
	FROM memories m JOIN vaults v ON v.id = m.vault_id JOIN users u ON u.id = m.created_by`

func scanMemory(s scanner) (*model.Memory, error) {
	var m model.Memory
	var taken sql.NullTime
	var tags string
	err := s.Scan(&m.ID, &m.Title, &m.Description, &m.Type, &m.PhotoURL, &m.AudioURL, &m.VideoURL,
		&taken, &m.Location, &tags, &m.VaultID, &m.VaultName, &m.CreatedBy, &m.CreatedByName,
		&m.LikesCount, &m.CommentsCount, &m.IsLiked, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if taken.Valid {
		m.DateTaken = &taken.Time
	}
	m.Tags = decodeList(tags)
	return &m, nil
}

type MemoryInput struct {
	Title       string
	Description string
	Type        model.MemoryType
	PhotoURL    string
	AudioURL    string
	VideoURL    string
	DateTaken   *time.Time
	Location    string
	Tags        []string
	VaultID     string
}

type MemoryFilter struct {
	Type      model.MemoryType
	VaultID   string
	CreatedBy int64
	Year      string
	Search    string
	Ordering  string
}

var memoryOrdering = map[string]string{
	"created_at": "m.created_at",
	"date_taken": "m.date_taken",
	"title":      "m.title",
}

func (s *MemoryStore) query(ctx context.Context, userID int64, p access.Predicate, order string) ([]model.Memory, error) {
	args := append([]any{userID}, p.Args...)
	rows, err := s.db.QueryContext(ctx, memorySelect+p.Where()+` ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	memories := []model.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func (s *MemoryStore) filter(userID int64, f MemoryFilter) access.Predicate {
	preds := []access.Predicate{access.VaultVisible(userID, "m.vault_id")}
	if f.Type != "" {
		preds = append(preds, access.Eq("m.type", string(f.Type)))
	}
	if f.VaultID != "" {
		preds = append(preds, access.Eq("m.vault_id", f.VaultID))
	}
	if f.CreatedBy != 0 {
		preds = append(preds, access.Eq("m.created_by", f.CreatedBy))
	}
	if f.Year != "" {
		preds = append(preds, access.Eq("substr(m.date_taken, 1, 4)", f.Year))
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		preds = append(preds, access.Predicate{
			SQL:  `m.title LIKE ? ESCAPE '\' OR m.description LIKE ? ESCAPE '\' OR m.location LIKE ? ESCAPE '\'`,
			Args: []any{pat, pat, pat},
		})
	}
	return access.And(preds...)
}

func (s *MemoryStore) List(ctx context.Context, userID int64, f MemoryFilter) ([]model.Memory, error) {
	order := orderBy(f.Ordering, memoryOrdering, "m.date_taken DESC") + ", m.created_at DESC, m.id ASC"
	return s.query(ctx, userID, s.filter(userID, f), order)
}

// Timeline lists visible memories newest first by date taken, optionally
// restricted to one year.
func (s *MemoryStore) Timeline(ctx context.Context, userID int64, year string) ([]model.Memory, error) {
	return s.query(ctx, userID, s.filter(userID, MemoryFilter{Year: year}), "m.date_taken DESC, m.created_at DESC, m.id ASC")
}

func (s *MemoryStore) Get(ctx context.Context, userID int64, id string) (*model.Memory, error) {
	p := access.And(access.Eq("m.id", id), access.VaultVisible(userID, "m.vault_id"))
	args := append([]any{userID}, p.Args...)
	m, err := scanMemory(s.db.QueryRowContext(ctx, memorySelect+p.Where(), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// Detail returns the memory with its comments and likes.
func (s *MemoryStore) Detail(ctx context.Context, userID int64, id string) (*model.MemoryDetail, error) {
	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.listComments(ctx, id)
	if err != nil {
		return nil, err
	}
	likes, err := s.listLikes(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.MemoryDetail{Memory: *m, Comments: comments, Likes: likes}, nil
}

func (s *MemoryStore) Create(ctx context.Context, userID int64, in MemoryInput) (*model.Memory, error) {
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, title, description, type, photo_url, audio_url, video_url,
			date_taken, location, tags, vault_id, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Description, string(in.Type), in.PhotoURL, in.AudioURL, in.VideoURL,
		nullTime(in.DateTaken), in.Location, encodeList(in.Tags), in.VaultID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *MemoryStore) Update(ctx context.Context, userID int64, id string, in MemoryInput) (*model.Memory, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET title = ?, description = ?, type = ?, photo_url = ?, audio_url = ?,
			video_url = ?, date_taken = ?, location = ?, tags = ?, vault_id = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Title, in.Description, string(in.Type), in.PhotoURL, in.AudioURL, in.VideoURL,
		nullTime(in.DateTaken), in.Location, encodeList(in.Tags), in.VaultID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *MemoryStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return affected(res)
}

// Stats aggregates every memory visible to userID.
func (s *MemoryStore) Stats(ctx context.Context, userID int64) (*model.MemoryStats, error) {
	stats := &model.MemoryStats{
		ByType: make(map[model.MemoryType]int, len(model.MemoryTypes)),
		ByYear: map[string]int{},
	}
	for _, t := range model.MemoryTypes {
		stats.ByType[t] = 0
	}

	p := access.VaultVisible(userID, "m.vault_id")
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.type, substr(m.date_taken, 1, 4),
			(SELECT COUNT(*) FROM memory_likes l WHERE l.memory_id = m.id),
			(SELECT COUNT(*) FROM memory_comments c WHERE c.memory_id = m.id)
		 FROM memories m`+p.Where(), p.Args...)
	if err != nil {
		return nil, fmt.Errorf("memory stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.MemoryType
		var year sql.NullString
		var likes, comments int
		if err := rows.Scan(&t, &year, &likes, &comments); err != nil {
			return nil, fmt.Errorf("scan memory stats: %w", err)
		}
		stats.TotalMemories++
		stats.ByType[t]++
		if year.Valid && year.String != "" {
			stats.ByYear[year.String]++
		}
		stats.TotalLikes += likes
		stats.TotalComments += comments
	}
	return stats, rows.Err()
}

func (s *MemoryStore) checkMemory(ctx context.Context, userID int64, memoryID string) error {
	p := access.And(access.Eq("id", memoryID), access.VaultVisible(userID, "vault_id"))
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories`+p.Where(), p.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check memory: %w", err)
	}
	return nil
}

// Like records userID's like of memoryID. A like that already exists is
// reported as ErrConflict by the unique index.
func (s *MemoryStore) Like(ctx context.Context, userID int64, memoryID string) error {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_likes (memory_id, user_id) VALUES (?, ?) ON CONFLICT (memory_id, user_id) DO NOTHING`,
		memoryID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("like memory: %w", model.ErrConflict)
	}
	return nil
}

// Unlike removes userID's like. ErrNotFound when there was none.
func (s *MemoryStore) Unlike(ctx context.Context, userID int64, memoryID string) error {
	if err := s.checkMemory(ctx, userID, memoryID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_likes WHERE memory_id = ? AND user_id = ?`, memoryID, userID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return affected(res)
}

func (s *MemoryStore) listLikes(ctx context.Context, memoryID string) ([]model.MemoryLike, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.user_id, u.name, l.created_at FROM memory_likes l JOIN users u ON u.id = l.user_id
		 WHERE l.memory_id = ? ORDER BY l.created_at ASC, l.id ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()

	likes := []model.MemoryLike{}
	for rows.Next() {
		var l model.MemoryLike
		if err := rows.Scan(&l.UserID, &l.UserName, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
