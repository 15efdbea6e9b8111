package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestIssueAndVerify(t *testing.T) {
	iss := &Issuer{Secret: secret, TTL: time.Hour}
	v := &Verifier{Secret: secret}

	tok, err := iss.Issue("user-1", true)
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "user-1", IsAdmin: true}, p)
}

func TestVerifyRejects(t *testing.T) {
	v := &Verifier{Secret: secret}

	expired, err := (&Issuer{Secret: secret, TTL: time.Minute, now: func() time.Time {
		return time.Now().Add(-time.Hour)
	}}).Issue("user-1", false)
	require.NoError(t, err)

	otherKey, err := (&Issuer{Secret: []byte("other"), TTL: time.Hour}).Issue("user-1", false)
	require.NoError(t, err)

	noID, err := (&Issuer{Secret: secret, TTL: time.Hour}).Issue("", false)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "user-1"}).SignedString(secret)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ID:               "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": otherKey,
		"missing id":   noID,
		"missing exp":  noExp,
		"alg none":     none,
		"garbage":      "not-a-token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", p.UserID)
}
