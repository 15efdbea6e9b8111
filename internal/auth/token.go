package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal is the authenticated caller.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Claims match the tokens issued by the account service: {id, isAdmin, exp}.
type Claims struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

type Verifier struct {
	Secret []byte
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if c.ID == "" {
		return Principal{}, fmt.Errorf("%w: token has no user id", ErrUnauthorized)
	}
	return Principal{UserID: c.ID, IsAdmin: c.IsAdmin}, nil
}

// Issuer mints tokens. The API only verifies; cmd/token issues tokens for
// local accounts.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func (i *Issuer) Issue(userID string, isAdmin bool) (string, error) {
	now := time.Now
	if i.now != nil {
		now = i.now
	}
	t := now()
	c := Claims{
		ID:      userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(t),
			ExpiresAt: jwt.NewNumericDate(t.Add(i.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.Secret)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
