package handler

import (
	"context"
	"log/slog"

	"github.com/dukerupert/nonna/internal/model"
)

// Notifier delivers out-of-band notices about vault activity.
// A nil Notifier disables them.
type Notifier interface {
	SendVaultAdded(ctx context.Context, toEmail, inviter, vaultName, role string) error
	SendMemoryShared(ctx context.Context, toEmail, sharer, memoryTitle, message string) error
}

// notify runs send and logs a failure. The request has already succeeded.
func notify(logger *slog.Logger, kind string, send func() error) {
	if err := send(); err != nil {
		logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

func displayName(u *model.User) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}
