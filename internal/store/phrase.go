package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

type PhraseStore struct {
	db *sql.DB
}

func NewPhraseStore(db *sql.DB) *PhraseStore {
	return &PhraseStore{db: db}
}

const phraseSelect = `SELECT ph.id, ph.text, ph.translation, ph.category, ph.context, ph.person_mentioned,
	ph.language, ph.audio_url, ph.audio_duration, ph.tags, ph.is_favorite, ph.usage_count,
	(SELECT COUNT(*) FROM phrase_playbacks pb WHERE pb.phrase_id = ph.id),
	ph.vault_id, v.name, ph.created_by, u.name, ph.created_at, ph.updated_at
	FROM phrases ph JOIN vaults v ON v.id = ph.vault_id JOIN users u ON u.id = ph.created_by`

func scanPhrase(s scanner) (*model.Phrase, error) {
	var p model.Phrase
	var duration sql.NullFloat64
	var tags string
	err := s.Scan(&p.ID, &p.Text, &p.Translation, &p.Category, &p.Context, &p.PersonMentioned,
		&p.Language, &p.AudioURL, &duration, &tags, &p.IsFavorite, &p.UsageCount, &p.PlaybacksCount,
		&p.VaultID, &p.VaultName, &p.CreatedBy, &p.CreatedByName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		p.AudioDuration = &duration.Float64
	}
	p.Tags = decodeList(tags)
	return &p, nil
}

func queryPhrases(ctx context.Context, q querier, p access.Predicate, order string, limit int) ([]model.Phrase, error) {
	query := phraseSelect + p.Where() + ` ORDER BY ` + order
	args := p.Args
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(append([]any{}, args...), limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	defer rows.Close()

	phrases := []model.Phrase{}
	for rows.Next() {
		ph, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phrase: %w", err)
		}
		phrases = append(phrases, *ph)
	}
	return phrases, rows.Err()
}

type PhraseInput struct {
	Text            string
	Translation     string
	Category        model.PhraseCategory
	Context         string
	PersonMentioned string
	Language        string
	AudioURL        string
	AudioDuration   *float64
	Tags            []string
	IsFavorite      bool
	VaultID         string
}

type PhraseFilter struct {
	Category   model.PhraseCategory
	VaultID    string
	IsFavorite *bool
	Search     string
	Ordering   string
}

var phraseOrdering = map[string]string{
	"usage_count": "ph.usage_count",
	"created_at":  "ph.created_at",
	"text":        "ph.text",
}

const phraseDefaultOrder = "ph.usage_count DESC, ph.created_at DESC, ph.id ASC"

func (s *PhraseStore) List(ctx context.Context, userID int64, f PhraseFilter) ([]model.Phrase, error) {
	preds := []access.Predicate{access.VaultVisible(userID, "ph.vault_id")}
	if f.Category != "" {
		preds = append(preds, access.Eq("ph.category", string(f.Category)))
	}
	if f.VaultID != "" {
		preds = append(preds, access.Eq("ph.vault_id", f.VaultID))
	}
	if f.IsFavorite != nil {
		preds = append(preds, access.Eq("ph.is_favorite", *f.IsFavorite))
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		preds = append(preds, access.Predicate{
			SQL:  `ph.text LIKE ? ESCAPE '\' OR ph.translation LIKE ? ESCAPE '\' OR ph.context LIKE ? ESCAPE '\'`,
			Args: []any{pat, pat, pat},
		})
	}
	order := phraseDefaultOrder
	if f.Ordering != "" {
		order = orderBy(f.Ordering, phraseOrdering, "ph.usage_count DESC") + ", ph.created_at DESC, ph.id ASC"
	}
	return queryPhrases(ctx, s.db, access.And(preds...), order, 0)
}

func getPhrase(ctx context.Context, q querier, userID int64, id string) (*model.Phrase, error) {
	p := access.And(access.Eq("ph.id", id), access.VaultVisible(userID, "ph.vault_id"))
	ph, err := scanPhrase(q.QueryRowContext(ctx, phraseSelect+p.Where(), p.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get phrase: %w", err)
	}
	return ph, nil
}

func (s *PhraseStore) Get(ctx context.Context, userID int64, id string) (*model.Phrase, error) {
	return getPhrase(ctx, s.db, userID, id)
}

func (s *PhraseStore) Create(ctx context.Context, userID int64, in PhraseInput) (*model.Phrase, error) {
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	if in.Language == "" {
		in.Language = "es"
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phrases (id, text, translation, category, context, person_mentioned, language,
			audio_url, audio_duration, tags, is_favorite, vault_id, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Text, in.Translation, string(in.Category), in.Context, in.PersonMentioned, in.Language,
		in.AudioURL, nullFloat(in.AudioDuration), encodeList(in.Tags), in.IsFavorite, in.VaultID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert phrase: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *PhraseStore) Update(ctx context.Context, userID int64, id string, in PhraseInput) (*model.Phrase, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := referencedVault(ctx, s.db, userID, in.VaultID); err != nil {
		return nil, err
	}
	if in.Language == "" {
		in.Language = "es"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE phrases SET text = ?, translation = ?, category = ?, context = ?, person_mentioned = ?,
			language = ?, audio_url = ?, audio_duration = ?, tags = ?, is_favorite = ?, vault_id = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Text, in.Translation, string(in.Category), in.Context, in.PersonMentioned, in.Language,
		in.AudioURL, nullFloat(in.AudioDuration), encodeList(in.Tags), in.IsFavorite, in.VaultID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update phrase: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *PhraseStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
	res, err := s.db.ExecContext(ctx, `DELETE FROM phrases`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}
	return affected(res)
}

// ToggleFavorite flips is_favorite in a single statement.
func (s *PhraseStore) ToggleFavorite(ctx context.Context, userID int64, id string) (*model.Phrase, error) {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
	res, err := s.db.ExecContext(ctx,
		`UPDATE phrases SET is_favorite = NOT is_favorite, updated_at = CURRENT_TIMESTAMP`+p.Where(), p.Args...)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

const playbackSelect = `SELECT pb.id, pb.phrase_id, ph.text, pb.user_id, u.name, pb.played_at, pb.duration_played
	FROM phrase_playbacks pb JOIN phrases ph ON ph.id = pb.phrase_id JOIN users u ON u.id = pb.user_id`

func scanPlayback(s scanner) (*model.PhrasePlayback, error) {
	var pb model.PhrasePlayback
	var duration sql.NullFloat64
	err := s.Scan(&pb.ID, &pb.PhraseID, &pb.PhraseText, &pb.UserID, &pb.UserName, &pb.PlayedAt, &duration)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		pb.DurationPlayed = &duration.Float64
	}
	return &pb, nil
}

func queryPlaybacks(ctx context.Context, q querier, where string, args []any, limit int) ([]model.PhrasePlayback, error) {
	query := playbackSelect + ` WHERE ` + where + ` ORDER BY pb.played_at DESC, pb.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(append([]any{}, args...), limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list playbacks: %w", err)
	}
	defer rows.Close()

	playbacks := []model.PhrasePlayback{}
	for rows.Next() {
		pb, err := scanPlayback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playback: %w", err)
		}
		playbacks = append(playbacks, *pb)
	}
	return playbacks, rows.Err()
}

// Play records a playback of phraseID by userID and bumps its usage count
// in the same transaction.
func (s *PhraseStore) Play(ctx context.Context, userID int64, phraseID string, duration *float64) (*model.PhrasePlayback, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p := access.And(access.Eq("id", phraseID), access.VaultVisible(userID, "vault_id"))
	res, err := tx.ExecContext(ctx, `UPDATE phrases SET usage_count = usage_count + 1`+p.Where(), p.Args...)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO phrase_playbacks (phrase_id, user_id, duration_played) VALUES (?, ?, ?)`,
		phraseID, userID, nullFloat(duration),
	)
	if err != nil {
		return nil, fmt.Errorf("insert playback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	pb, err := scanPlayback(tx.QueryRowContext(ctx, playbackSelect+` WHERE pb.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get playback: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit playback: %w", err)
	}
	return pb, nil
}

func (s *PhraseStore) ListPlaybacks(ctx context.Context, userID int64, phraseID string) ([]model.PhrasePlayback, error) {
	if _, err := s.Get(ctx, userID, phraseID); err != nil {
		return nil, err
	}
	return queryPlaybacks(ctx, s.db, `pb.phrase_id = ?`, []any{phraseID}, 0)
}

// Stats summarises the phrases of one vault.
func (s *PhraseStore) Stats(ctx context.Context, userID int64, vaultID string) (*model.PhraseStats, error) {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return nil, err
	}
	stats := &model.PhraseStats{ByCategory: make(map[model.PhraseCategory]int, len(model.PhraseCategories))}
	for _, c := range model.PhraseCategories {
		stats.ByCategory[c] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM phrases WHERE vault_id = ? GROUP BY category`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("count phrases: %w", err)
	}
	for rows.Next() {
		var c model.PhraseCategory
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan phrase count: %w", err)
		}
		stats.ByCategory[c] = n
		stats.TotalPhrases += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	stats.MostUsed, err = queryPhrases(ctx, s.db, access.Eq("ph.vault_id", vaultID), phraseDefaultOrder, 5)
	if err != nil {
		return nil, err
	}
	stats.RecentPlaybacks, err = queryPlaybacks(ctx, s.db, `ph.vault_id = ?`, []any{vaultID}, 10)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM phrase_playbacks pb JOIN phrases ph ON ph.id = pb.phrase_id WHERE ph.vault_id = ?`, vaultID,
	).Scan(&stats.TotalPlaybacks)
	if err != nil {
		return nil, fmt.Errorf("count playbacks: %w", err)
	}
	return stats, nil
}

// Random picks up to count phrases of vaultID in random order.
func (s *PhraseStore) Random(ctx context.Context, userID int64, vaultID string, count int) ([]model.Phrase, error) {
	if err := checkVault(ctx, s.db, userID, vaultID); err != nil {
		return nil, err
	}
	if count <= 0 {
		return []model.Phrase{}, nil
	}
	return queryPhrases(ctx, s.db, access.Eq("ph.vault_id", vaultID), "RANDOM()", count)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
