package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/respond"
	"github.com/dukerupert/nonna/internal/store"
	"github.com/dukerupert/nonna/internal/websocket"
)

type MemoryHandler struct {
	base
	memories *store.MemoryStore
	users    *store.UserStore
	notifier Notifier
}

func NewMemoryHandler(ms *store.MemoryStore, us *store.UserStore, n Notifier, hub *websocket.Hub, logger *slog.Logger) *MemoryHandler {
	return &MemoryHandler{base: base{hub: hub, logger: logger}, memories: ms, users: us, notifier: n}
}

type memoryRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	Type        string     `json:"type" validate:"required,memory_type"`
	PhotoURL    string     `json:"photo" validate:"max=500"`
	AudioURL    string     `json:"audio" validate:"max=500"`
	VideoURL    string     `json:"video" validate:"max=500"`
	DateTaken   *time.Time `json:"date_taken"`
	Location    string     `json:"location" validate:"max=200"`
	Tags        []string   `json:"tags"`
	VaultID     string     `json:"vault" validate:"required"`
}

func (req memoryRequest) input() store.MemoryInput {
	return store.MemoryInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Type:        model.MemoryType(req.Type),
		PhotoURL:    req.PhotoURL,
		AudioURL:    req.AudioURL,
		VideoURL:    req.VideoURL,
		DateTaken:   req.DateTaken,
		Location:    req.Location,
		Tags:        req.Tags,
		VaultID:     req.VaultID,
	}
}

type commentRequest struct {
	Text string `json:"text" validate:"required"`
}

type shareRequest struct {
	MemoryID   string `json:"memory" validate:"required"`
	SharedWith int64  `json:"shared_with" validate:"required"`
	Message    string `json:"message"`
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var createdBy int64
	if raw := q.Get("created_by"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, r, model.Invalid("created_by", "must be a user id"))
			return
		}
		createdBy = id
	}
	memories, err := h.memories.List(r.Context(), auth.UserID(r.Context()), store.MemoryFilter{
		Type:      model.MemoryType(q.Get("type")),
		VaultID:   q.Get("vault"),
		CreatedBy: createdBy,
		Search:    q.Get("search"),
		Ordering:  q.Get("ordering"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(memories))
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.memories.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(m.VaultID, "memory", "created", m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.memories.Detail(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m.Comments = list(m.Comments)
	m.Likes = list(m.Likes)
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.memories.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := memoryRequest{
		Title: cur.Title, Description: cur.Description, Type: string(cur.Type),
		PhotoURL: cur.PhotoURL, AudioURL: cur.AudioURL, VideoURL: cur.VideoURL,
		DateTaken: cur.DateTaken, Location: cur.Location, Tags: cur.Tags, VaultID: cur.VaultID,
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.memories.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(m.VaultID, "memory", "updated", m.ID)
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.memories.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.memories.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(cur.VaultID, "memory", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemoryHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	if year != "" {
		if _, err := strconv.Atoi(year); err != nil || len(year) != 4 {
			h.fail(w, r, model.Invalid("year", "must be a four digit year"))
			return
		}
	}
	memories, err := h.memories.Timeline(r.Context(), auth.UserID(r.Context()), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(memories))
}

func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.memories.Stats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Likes

func (h *MemoryHandler) Like(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.memories.Like(r.Context(), auth.UserID(r.Context()), id)
	if errors.Is(err, model.ErrConflict) {
		respond.WriteError(w, http.StatusConflict, "memory already liked")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.memoryChanged(r, id, "memory_like", "created", id)
	writeJSON(w, http.StatusCreated, map[string]string{"detail": "memory liked"})
}

func (h *MemoryHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := auth.UserID(r.Context())
	if _, err := h.memories.Get(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.memories.Unlike(r.Context(), userID, id)
	if errors.Is(err, model.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "memory not liked")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.memoryChanged(r, id, "memory_like", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Comments

func (h *MemoryHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.memories.ListComments(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(comments))
}

func (h *MemoryHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.memories.AddComment(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), strings.TrimSpace(req.Text))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.memoryChanged(r, c.MemoryID, "memory_comment", "created", c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (h *MemoryHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	c, err := h.memories.GetComment(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), r.PathValue("comment_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *MemoryHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.memories.UpdateComment(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), r.PathValue("comment_id"), strings.TrimSpace(req.Text))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.memoryChanged(r, c.MemoryID, "memory_comment", "updated", c.ID)
	writeJSON(w, http.StatusOK, c)
}

func (h *MemoryHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	memoryID, commentID := r.PathValue("id"), r.PathValue("comment_id")
	if err := h.memories.DeleteComment(r.Context(), auth.UserID(r.Context()), memoryID, commentID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.memoryChanged(r, memoryID, "memory_comment", "deleted", commentID)
	w.WriteHeader(http.StatusNoContent)
}

// Shares

func (h *MemoryHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.memories.ListShares(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(shares))
}

func (h *MemoryHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sh, err := h.memories.Share(r.Context(), auth.UserID(r.Context()), req.MemoryID, req.SharedWith, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// shares are personal, not vault content
	h.changed("", "memory_share", "created", sh.ID)
	h.notifyShared(r, sh)
	writeJSON(w, http.StatusCreated, sh)
}

func (h *MemoryHandler) notifyShared(r *http.Request, sh *model.MemoryShare) {
	if h.notifier == nil {
		return
	}
	ctx := r.Context()
	to, err := h.users.GetByID(ctx, sh.SharedWith)
	if err != nil {
		h.logger.Warn("resolve share recipient", "user_id", sh.SharedWith, "error", err)
		return
	}
	sharer := sh.SharedByName
	if sharer == "" {
		if u, err := h.users.GetByID(ctx, sh.SharedBy); err == nil {
			sharer = displayName(u)
		}
	}
	notify(h.logger, "memory_shared", func() error {
		return h.notifier.SendMemoryShared(ctx, to.Email, sharer, sh.MemoryTitle, sh.Message)
	})
}

func (h *MemoryHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	sh, err := h.memories.GetShare(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *MemoryHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.memories.DeleteShare(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed("", "memory_share", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// memoryChanged resolves the vault of memoryID before broadcasting.
func (h *MemoryHandler) memoryChanged(r *http.Request, memoryID, entity, action, id string) {
	m, err := h.memories.Get(r.Context(), auth.UserID(r.Context()), memoryID)
	if err != nil {
		h.logger.Warn("resolve memory vault", "memory_id", memoryID, "error", err)
		h.changed("", entity, action, id)
		return
	}
	h.changed(m.VaultID, entity, action, id)
}
