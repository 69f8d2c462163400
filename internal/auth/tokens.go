package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dukerupert/nonna/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issued is a signed token with its identifier and expiry.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

func (i *Issuer) issue(userID int64, typ string, ttl time.Duration) (Issued, error) {
	now := i.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (i *Issuer) Access(userID int64) (Issued, error) {
	return i.issue(userID, TypeAccess, i.accessTTL)
}

func (i *Issuer) Refresh(userID int64) (Issued, error) {
	return i.issue(userID, TypeRefresh, i.refreshTTL)
}

// Parse verifies signature, expiry and token type. Any failure is
// model.ErrInvalidToken.
func (i *Issuer) Parse(token, typ string) (userID int64, claims *Claims, err error) {
	claims = &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return 0, nil, fmt.Errorf("%w: want %s token", model.ErrInvalidToken, typ)
	}
	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, nil, fmt.Errorf("%w: bad subject", model.ErrInvalidToken)
	}
	return userID, claims, nil
}
