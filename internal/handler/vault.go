package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/store"
	"github.com/dukerupert/nonna/internal/websocket"
)

type VaultHandler struct {
	base
	vaults   *store.VaultStore
	users    *store.UserStore
	notifier Notifier
}

func NewVaultHandler(vs *store.VaultStore, us *store.UserStore, n Notifier, hub *websocket.Hub, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{base: base{hub: hub, logger: logger}, vaults: vs, users: us, notifier: n}
}

type vaultRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

func (req vaultRequest) input() store.VaultInput {
	return store.VaultInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
}

type joinRequest struct {
	VaultID string `json:"vault_id" validate:"required"`
}

type memberRequest struct {
	UserID int64  `json:"user_id" validate:"required_without=Email"`
	Email  string `json:"email" validate:"omitempty,email"`
	Role   string `json:"role" validate:"omitempty,role"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

func (h *VaultHandler) List(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.vaults.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(vaults))
}

func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req vaultRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.vaults.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(v.ID, "vault", "created", v.ID)
	writeJSON(w, http.StatusCreated, v)
}

func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.Detail(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v.Members = list(v.Members)
	writeJSON(w, http.StatusOK, v)
}

func (h *VaultHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.vaults.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req := vaultRequest{Name: cur.Name, Description: cur.Description, IsPublic: cur.IsPublic}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.vaults.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(v.ID, "vault", "updated", v.ID)
	writeJSON(w, http.StatusOK, v)
}

func (h *VaultHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.vaults.Delete(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(id, "vault", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.vaults.Join(r.Context(), auth.UserID(r.Context()), req.VaultID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(m.VaultID, "vault_member", "created", strconv.FormatInt(m.ID, 10))
	h.notifyAdded(r, m)
	writeJSON(w, http.StatusCreated, m)
}

func (h *VaultHandler) notifyAdded(r *http.Request, m *model.VaultMember) {
	if h.notifier == nil || m.UserEmail == "" {
		return
	}
	ctx := r.Context()
	userID := auth.UserID(ctx)
	inviter, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.logger.Warn("resolve inviter", "user_id", userID, "error", err)
		return
	}
	v, err := h.vaults.Get(ctx, userID, m.VaultID)
	if err != nil {
		h.logger.Warn("resolve vault", "vault_id", m.VaultID, "error", err)
		return
	}
	notify(h.logger, "vault_added", func() error {
		return h.notifier.SendVaultAdded(ctx, m.UserEmail, displayName(inviter), v.Name, m.Role)
	})
}

func (h *VaultHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.vaults.Leave(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(id, "vault_member", "deleted", "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.vaults.ListMembers(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(members))
}

func (h *VaultHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}

	memberID := req.UserID
	if memberID == 0 {
		u, err := h.users.GetByEmail(r.Context(), normalizeEmail(req.Email))
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				err = model.Invalid("email", "user not found")
			}
			h.fail(w, r, err)
			return
		}
		memberID = u.ID
	}

	m, err := h.vaults.AddMember(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), memberID, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(m.VaultID, "vault_member", "created", strconv.FormatInt(m.ID, 10))
	h.notifyAdded(r, m)
	writeJSON(w, http.StatusCreated, m)
}

func (h *VaultHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathInt(r, "member_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.vaults.GetMember(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), memberID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *VaultHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathInt(r, "member_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.vaults.UpdateMemberRole(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), memberID, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(m.VaultID, "vault_member", "updated", strconv.FormatInt(m.ID, 10))
	writeJSON(w, http.StatusOK, m)
}

func (h *VaultHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathInt(r, "member_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vaultID := r.PathValue("id")
	if err := h.vaults.RemoveMember(r.Context(), auth.UserID(r.Context()), vaultID, memberID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(vaultID, "vault_member", "deleted", r.PathValue("member_id"))
	w.WriteHeader(http.StatusNoContent)
}
