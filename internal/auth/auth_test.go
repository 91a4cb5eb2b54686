package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string, expired bool) string {
	t.Helper()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCallerIDReturnsAnonymousWithoutHeader(t *testing.T) {
	t.Parallel()

	id := New("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, AnonymousCallerID, id.CallerID(req))
}

func TestCallerIDReturnsSubjectForValidToken(t *testing.T) {
	t.Parallel()

	id := New("secret")
	token := signToken(t, "secret", "user-123", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	assert.Equal(t, "user-123", id.CallerID(req))
}

func TestCallerIDFallsBackOnWrongSecret(t *testing.T) {
	t.Parallel()

	id := New("secret")
	token := signToken(t, "wrong-secret", "user-123", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	assert.Equal(t, AnonymousCallerID, id.CallerID(req))
}

func TestCallerIDFallsBackOnExpiredToken(t *testing.T) {
	t.Parallel()

	id := New("secret")
	token := signToken(t, "secret", "user-123", true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	assert.Equal(t, AnonymousCallerID, id.CallerID(req))
}

func TestCallerIDFromContextDefaultsToAnonymous(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AnonymousCallerID, CallerIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
