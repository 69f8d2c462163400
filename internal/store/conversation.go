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

// ConversationStore holds ordered phrase sessions and their playback log.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const sessionSelect = `SELECT cs.id, cs.name, cs.description, cs.auto_play, cs.shuffle_order, cs.total_playbacks,
	cs.last_played, (SELECT COUNT(*) FROM conversation_session_phrases sp WHERE sp.session_id = cs.id),
	cs.vault_id, v.name, cs.created_by, u.name, cs.created_at, cs.updated_at
	FROM conversation_sessions cs JOIN vaults v ON v.id = cs.vault_id JOIN users u ON u.id = cs.created_by`

func scanSession(s scanner) (*model.ConversationSession, error) {
	var cs model.ConversationSession
	var last sql.NullTime
	err := s.Scan(&cs.ID, &cs.Name, &cs.Description, &cs.AutoPlay, &cs.ShuffleOrder, &cs.TotalPlaybacks,
		&last, &cs.PhrasesCount, &cs.VaultID, &cs.VaultName, &cs.CreatedBy, &cs.CreatedByName,
		&cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		cs.LastPlayed = &last.Time
	}
	return &cs, nil
}

type SessionInput struct {
	Name         string
	Description  string
	PhraseIDs    []string
	AutoPlay     bool
	ShuffleOrder bool
	VaultID      string
}

func (s *ConversationStore) List(ctx context.Context, userID int64, vaultID string) ([]model.ConversationSession, error) {
	preds := []access.Predicate{access.VaultVisible(userID, "cs.vault_id")}
	if vaultID != "" {
		preds = append(preds, access.Eq("cs.vault_id", vaultID))
	}
	p := access.And(preds...)
	rows, err := s.db.QueryContext(ctx, sessionSelect+p.Where()+` ORDER BY cs.created_at DESC, cs.id ASC`, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := []model.ConversationSession{}
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *cs)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range sessions {
		ids, err := s.phraseIDs(ctx, s.db, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].PhraseIDs = ids
	}
	return sessions, nil
}

func (s *ConversationStore) phraseIDs(ctx context.Context, q querier, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT phrase_id FROM conversation_session_phrases WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session phrases: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session phrase: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ConversationStore) Get(ctx context.Context, userID int64, id string) (*model.ConversationSession, error) {
	p := access.And(access.Eq("cs.id", id), access.VaultVisible(userID, "cs.vault_id"))
	cs, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+p.Where(), p.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	cs.PhraseIDs, err = s.phraseIDs(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Detail returns the session with its phrases in session order.
func (s *ConversationStore) Detail(ctx context.Context, userID int64, id string) (*model.ConversationSessionDetail, error) {
	cs, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	phrases, err := queryPhrases(ctx, s.db,
		access.Predicate{SQL: `ph.id IN (SELECT phrase_id FROM conversation_session_phrases WHERE session_id = ?)`, Args: []any{id}},
		phraseDefaultOrder, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Phrase, len(phrases))
	for _, ph := range phrases {
		byID[ph.ID] = ph
	}
	ordered := make([]model.Phrase, 0, len(cs.PhraseIDs))
	for _, pid := range cs.PhraseIDs {
		if ph, ok := byID[pid]; ok {
			ordered = append(ordered, ph)
		}
	}
	return &model.ConversationSessionDetail{ConversationSession: *cs, Phrases: ordered}, nil
}

// setPhrases replaces the session's phrase list. Every phrase must be
// visible to the user and belong to the session's vault.
func setPhrases(ctx context.Context, tx *sql.Tx, userID int64, sessionID, vaultID string, phraseIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_session_phrases WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session phrases: %w", err)
	}
	seen := make(map[string]bool, len(phraseIDs))
	position := 0
	for _, pid := range phraseIDs {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		p := access.And(access.Eq("id", pid), access.Eq("vault_id", vaultID), access.VaultVisible(userID, "vault_id"))
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM phrases`+p.Where(), p.Args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Invalid("phrases", "phrase "+pid+" not found")
		}
		if err != nil {
			return fmt.Errorf("check phrase: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_session_phrases (session_id, phrase_id, position) VALUES (?, ?, ?)`,
			sessionID, pid, position,
		); err != nil {
			return fmt.Errorf("insert session phrase: %w", err)
		}
		position++
	}
	return nil
}

func (s *ConversationStore) Create(ctx context.Context, userID int64, in SessionInput) (*model.ConversationSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := referencedVault(ctx, tx, userID, in.VaultID); err != nil {
		return nil, err
	}
	id := newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_sessions (id, name, description, auto_play, shuffle_order, vault_id, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, in.Name, in.Description, in.AutoPlay, in.ShuffleOrder, in.VaultID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if err := setPhrases(ctx, tx, userID, id, in.VaultID, in.PhraseIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *ConversationStore) Update(ctx context.Context, userID int64, id string, in SessionInput) (*model.ConversationSession, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := referencedVault(ctx, tx, userID, in.VaultID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversation_sessions SET name = ?, description = ?, auto_play = ?, shuffle_order = ?,
			vault_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Name, in.Description, in.AutoPlay, in.ShuffleOrder, in.VaultID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if err := setPhrases(ctx, tx, userID, id, in.VaultID, in.PhraseIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *ConversationStore) Delete(ctx context.Context, userID int64, id string) error {
	p := access.And(access.Eq("id", id), access.VaultVisible(userID, "vault_id"))
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions`+p.Where(), p.Args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return affected(res)
}

const sessionPlaybackSelect = `SELECT cp.id, cp.session_id, cs.name, cp.user_id, u.name, cp.started_at, cp.ended_at, cp.phrases_played
	FROM conversation_playbacks cp
	JOIN conversation_sessions cs ON cs.id = cp.session_id
	JOIN users u ON u.id = cp.user_id`

func scanSessionPlayback(s scanner) (*model.ConversationPlayback, error) {
	var cp model.ConversationPlayback
	var ended sql.NullTime
	err := s.Scan(&cp.ID, &cp.SessionID, &cp.SessionName, &cp.UserID, &cp.UserName, &cp.StartedAt, &ended, &cp.PhrasesPlayed)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		cp.EndedAt = &ended.Time
	}
	return &cp, nil
}

type PlaybackInput struct {
	EndedAt       *time.Time
	PhrasesPlayed int
}

// RecordPlayback logs a run of sessionID and updates the session's
// total_playbacks and last_played in the same transaction.
func (s *ConversationStore) RecordPlayback(ctx context.Context, userID int64, sessionID string, in PlaybackInput) (*model.ConversationPlayback, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	p := access.And(access.Eq("id", sessionID), access.VaultVisible(userID, "vault_id"))
	args := append([]any{now}, p.Args...)
	res, err := tx.ExecContext(ctx,
		`UPDATE conversation_sessions SET total_playbacks = total_playbacks + 1, last_played = ?`+p.Where(), args...)
	if err != nil {
		return nil, fmt.Errorf("update session playbacks: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_playbacks (session_id, user_id, started_at, ended_at, phrases_played) VALUES (?, ?, ?, ?, ?)`,
		sessionID, userID, now, nullTime(in.EndedAt), in.PhrasesPlayed,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session playback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	cp, err := scanSessionPlayback(tx.QueryRowContext(ctx, sessionPlaybackSelect+` WHERE cp.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get session playback: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session playback: %w", err)
	}
	return cp, nil
}

func (s *ConversationStore) ListPlaybacks(ctx context.Context, userID int64, sessionID string) ([]model.ConversationPlayback, error) {
	if err := s.checkSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		sessionPlaybackSelect+` WHERE cp.session_id = ? ORDER BY cp.started_at DESC, cp.id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session playbacks: %w", err)
	}
	defer rows.Close()

	playbacks := []model.ConversationPlayback{}
	for rows.Next() {
		cp, err := scanSessionPlayback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session playback: %w", err)
		}
		playbacks = append(playbacks, *cp)
	}
	return playbacks, rows.Err()
}

func (s *ConversationStore) checkSession(ctx context.Context, userID int64, sessionID string) error {
	p := access.And(access.Eq("id", sessionID), access.VaultVisible(userID, "vault_id"))
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversation_sessions`+p.Where(), p.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}
