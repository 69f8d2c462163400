package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/store"
)

type AccountHandler struct {
	base
	provider *auth.Provider
	users    *store.UserStore
}

func NewAccountHandler(p *auth.Provider, us *store.UserStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{base: base{logger: logger}, provider: p, users: us}
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Username        string `json:"username" validate:"required,max=150"`
	Name            string `json:"name" validate:"max=200"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type profileRequest struct {
	Name      string `json:"name" validate:"max=200"`
	Phone     string `json:"phone" validate:"max=20"`
	BirthDate string `json:"birth_date" validate:"omitempty,date"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url,max=500"`
}

type authResponse struct {
	User *model.User `json:"user"`
	auth.TokenPair
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.provider.Register(r.Context(), normalizeEmail(req.Email), strings.TrimSpace(req.Username), strings.TrimSpace(req.Name), req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tokens, err := h.provider.Issue(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: u, TokenPair: tokens})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.provider.Authenticate(r.Context(), normalizeEmail(req.Email), req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tokens, err := h.provider.Issue(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: u, TokenPair: tokens})
}

func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	access, err := h.provider.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.provider.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req := profileRequest{Name: u.Name, Phone: u.Phone, BirthDate: dateString(u.BirthDate), AvatarURL: u.AvatarURL}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err = h.users.UpdateProfile(r.Context(), userID, store.ProfileUpdate{
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		BirthDate: optDate(req.BirthDate),
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
