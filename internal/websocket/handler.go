package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/model"
)

// Verifier resolves an access token to its user.
type Verifier interface {
	Verify(token string) (auth.AuthContext, error)
}

// VaultAccess reports model.ErrNotFound for vaults the user cannot see.
type VaultAccess interface {
	CanAccess(ctx context.Context, userID int64, vaultID string) error
}

// HandleWebSocket upgrades authenticated requests for GET /ws?vault_id=...
// The access token comes from the Authorization header or the access_token
// query parameter, since browsers cannot set headers on websocket requests.
func HandleWebSocket(hub *Hub, verifier Verifier, vaults VaultAccess, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ac, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		vaultID := r.URL.Query().Get("vault_id")
		if vaultID == "" {
			http.Error(w, "vault_id is required", http.StatusBadRequest)
			return
		}
		if err := vaults.CanAccess(r.Context(), ac.UserID, vaultID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				http.Error(w, "vault not found", http.StatusNotFound)
				return
			}
			logger.Error("websocket access check", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket connected", "vault_id", vaultID, "user_id", ac.UserID)
		NewClient(hub, conn, vaultID, ac.UserID).Run(r.Context())
	}
}
