package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/store"
	"github.com/dukerupert/nonna/internal/websocket"
)

const (
	defaultRandomCount = 5
	maxRandomCount     = 50
)

type ConversationHandler struct {
	base
	phrases  *store.PhraseStore
	sessions *store.ConversationStore
}

func NewConversationHandler(ps *store.PhraseStore, cs *store.ConversationStore, hub *websocket.Hub, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{base: base{hub: hub, logger: logger}, phrases: ps, sessions: cs}
}

type phraseRequest struct {
	Text            string   `json:"text" validate:"required"`
	Translation     string   `json:"translation"`
	Category        string   `json:"category" validate:"required,phrase_category"`
	Context         string   `json:"context"`
	PersonMentioned string   `json:"person_mentioned" validate:"max=200"`
	Language        string   `json:"language" validate:"max=10"`
	AudioURL        string   `json:"audio_file" validate:"max=500"`
	AudioDuration   *float64 `json:"audio_duration" validate:"omitempty,gte=0"`
	Tags            []string `json:"tags"`
	IsFavorite      bool     `json:"is_favorite"`
	VaultID         string   `json:"vault" validate:"required"`
}

func (req phraseRequest) input() store.PhraseInput {
	return store.PhraseInput{
		Text:            strings.TrimSpace(req.Text),
		Translation:     req.Translation,
		Category:        model.PhraseCategory(req.Category),
		Context:         req.Context,
		PersonMentioned: req.PersonMentioned,
		Language:        req.Language,
		AudioURL:        req.AudioURL,
		AudioDuration:   req.AudioDuration,
		Tags:            req.Tags,
		IsFavorite:      req.IsFavorite,
		VaultID:         req.VaultID,
	}
}

type playRequest struct {
	DurationPlayed *float64 `json:"duration_played" validate:"omitempty,gte=0"`
}

type sessionRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Description  string   `json:"description"`
	PhraseIDs    []string `json:"phrases"`
	AutoPlay     bool     `json:"auto_play"`
	ShuffleOrder bool     `json:"shuffle_order"`
	VaultID      string   `json:"vault" validate:"required"`
}

func (req sessionRequest) input() store.SessionInput {
	return store.SessionInput{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		PhraseIDs:    req.PhraseIDs,
		AutoPlay:     req.AutoPlay,
		ShuffleOrder: req.ShuffleOrder,
		VaultID:      req.VaultID,
	}
}

type sessionPlaybackRequest struct {
	EndedAt       *time.Time `json:"ended_at"`
	PhrasesPlayed int        `json:"phrases_played" validate:"gte=0"`
}

// Phrases

func (h *ConversationHandler) ListPhrases(w http.ResponseWriter, r *http.Request) {
	fav, err := queryBool(r, "is_favorite")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	phrases, err := h.phrases.List(r.Context(), auth.UserID(r.Context()), store.PhraseFilter{
		Category:   model.PhraseCategory(q.Get("category")),
		VaultID:    q.Get("vault"),
		IsFavorite: fav,
		Search:     q.Get("search"),
		Ordering:   q.Get("ordering"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(phrases))
}

func (h *ConversationHandler) CreatePhrase(w http.ResponseWriter, r *http.Request) {
	req := phraseRequest{Category: string(model.CategoryOther)}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.phrases.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(p.VaultID, "phrase", "created", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *ConversationHandler) GetPhrase(w http.ResponseWriter, r *http.Request) {
	p, err := h.phrases.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ConversationHandler) UpdatePhrase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.phrases.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := phraseRequest{
		Text: cur.Text, Translation: cur.Translation, Category: string(cur.Category),
		Context: cur.Context, PersonMentioned: cur.PersonMentioned, Language: cur.Language,
		AudioURL: cur.AudioURL, AudioDuration: cur.AudioDuration, Tags: cur.Tags,
		IsFavorite: cur.IsFavorite, VaultID: cur.VaultID,
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.phrases.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(p.VaultID, "phrase", "updated", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (h *ConversationHandler) DeletePhrase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.phrases.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.phrases.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(cur.VaultID, "phrase", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	userID := auth.UserID(r.Context())
	pb, err := h.phrases.Play(r.Context(), userID, r.PathValue("id"), req.DurationPlayed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.phraseChanged(r, pb.PhraseID, "played")
	writeJSON(w, http.StatusCreated, pb)
}

func (h *ConversationHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	p, err := h.phrases.ToggleFavorite(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(p.VaultID, "phrase", "updated", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (h *ConversationHandler) ListPhrasePlaybacks(w http.ResponseWriter, r *http.Request) {
	pbs, err := h.phrases.ListPlaybacks(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(pbs))
}

func (h *ConversationHandler) phraseChanged(r *http.Request, phraseID, action string) {
	p, err := h.phrases.Get(r.Context(), auth.UserID(r.Context()), phraseID)
	if err != nil {
		h.logger.Warn("resolve phrase vault", "phrase_id", phraseID, "error", err)
		h.changed("", "phrase", action, phraseID)
		return
	}
	h.changed(p.VaultID, "phrase", action, phraseID)
}

// Sessions

func (h *ConversationHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("vault"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i := range sessions {
		sessions[i].PhraseIDs = list(sessions[i].PhraseIDs)
	}
	writeJSON(w, http.StatusOK, list(sessions))
}

func (h *ConversationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.sessions.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.PhraseIDs = list(s.PhraseIDs)
	h.changed(s.VaultID, "conversation_session", "created", s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (h *ConversationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Detail(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.Phrases = list(s.Phrases)
	writeJSON(w, http.StatusOK, s)
}

func (h *ConversationHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.sessions.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := sessionRequest{
		Name: cur.Name, Description: cur.Description, PhraseIDs: cur.PhraseIDs,
		AutoPlay: cur.AutoPlay, ShuffleOrder: cur.ShuffleOrder, VaultID: cur.VaultID,
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.sessions.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.PhraseIDs = list(s.PhraseIDs)
	h.changed(s.VaultID, "conversation_session", "updated", s.ID)
	writeJSON(w, http.StatusOK, s)
}

func (h *ConversationHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.sessions.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sessions.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(cur.VaultID, "conversation_session", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) ListSessionPlaybacks(w http.ResponseWriter, r *http.Request) {
	pbs, err := h.sessions.ListPlaybacks(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(pbs))
}

func (h *ConversationHandler) RecordSessionPlayback(w http.ResponseWriter, r *http.Request) {
	var req sessionPlaybackRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	pb, err := h.sessions.RecordPlayback(r.Context(), userID, id, store.PlaybackInput{
		EndedAt:       req.EndedAt,
		PhrasesPlayed: req.PhrasesPlayed,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s, err := h.sessions.Get(r.Context(), userID, id); err == nil {
		h.changed(s.VaultID, "conversation_session", "played", id)
	}
	writeJSON(w, http.StatusCreated, pb)
}

// Vault views

func (h *ConversationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.phrases.Stats(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.MostUsed = list(s.MostUsed)
	s.RecentPlaybacks = list(s.RecentPlaybacks)
	writeJSON(w, http.StatusOK, s)
}

func (h *ConversationHandler) Random(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", defaultRandomCount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if count < 1 || count > maxRandomCount {
		h.fail(w, r, model.Invalid("count", "must be between 1 and 50"))
		return
	}
	phrases, err := h.phrases.Random(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(phrases))
}
