package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/nonna/internal/model"
)

type UserStore interface {
	Create(ctx context.Context, email, username, name, passwordHash string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, jti string, userID int64, expiresAt time.Time) error
	Active(ctx context.Context, jti string, userID int64) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

// TokenPair is returned on register and login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Provider authenticates users by password and issues bearer tokens.
type Provider struct {
	users  UserStore
	tokens RefreshTokenStore
	issuer *Issuer
	logger *slog.Logger
}

func NewProvider(users UserStore, tokens RefreshTokenStore, issuer *Issuer, logger *slog.Logger) *Provider {
	return &Provider{users: users, tokens: tokens, issuer: issuer, logger: logger}
}

// dummyHash keeps the unknown-email path as slow as a wrong password.
var dummyHash, _ = HashPassword("nonna-dummy-password")

func (p *Provider) Register(ctx context.Context, email, username, name, password string) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := p.users.Create(ctx, email, username, name, hash)
	if err != nil {
		return nil, err
	}
	p.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		CheckPassword(dummyHash, password)
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, model.ErrInvalidCredentials
	}
	return u, nil
}

// Issue creates an access and refresh token for userID and records the
// refresh token so it can be revoked.
func (p *Provider) Issue(ctx context.Context, userID int64) (TokenPair, error) {
	access, err := p.issuer.Access(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := p.issuer.Refresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := p.tokens.Create(ctx, refresh.ID, userID, refresh.ExpiresAt); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token}, nil
}

// Verify validates an access token and returns its user.
func (p *Provider) Verify(token string) (AuthContext, error) {
	userID, claims, err := p.issuer.Parse(token, TypeAccess)
	if err != nil {
		return AuthContext{}, err
	}
	return AuthContext{UserID: userID, TokenID: claims.ID}, nil
}

// Refresh exchanges a live refresh token for a new access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, claims, err := p.issuer.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return "", err
	}
	ok, err := p.tokens.Active(ctx, claims.ID, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: refresh token revoked", model.ErrInvalidToken)
	}
	if _, err := p.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown user", model.ErrInvalidToken)
		}
		return "", err
	}
	access, err := p.issuer.Access(userID)
	if err != nil {
		return "", err
	}
	return access.Token, nil
}

// Revoke invalidates a refresh token. Revoking an already revoked token is
// not an error.
func (p *Provider) Revoke(ctx context.Context, refreshToken string) error {
	_, claims, err := p.issuer.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return err
	}
	return p.tokens.Revoke(ctx, claims.ID)
}
