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

func TestPassword(t *testing.T) {
	s, err := NewService("hunter2", "secret")
	require.NoError(t, err)
	assert.NoError(t, s.ValidatePassword("hunter2"))
	assert.ErrorIs(t, s.ValidatePassword("wrong"), ErrInvalidPassword)

	disabled, err := NewService("", "secret")
	require.NoError(t, err)
	assert.ErrorIs(t, disabled.ValidatePassword(""), ErrAdminDisabled)
}

func TestTokenRoundTrip(t *testing.T) {
	s, err := NewService("", "secret")
	require.NoError(t, err)

	tok, err := s.GenerateToken(Principal{Role: RoleUser, ID: "usr_1"}, time.Hour)
	require.NoError(t, err)
	p, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Role: RoleUser, ID: "usr_1"}, *p)

	admin, err := s.AdminToken()
	require.NoError(t, err)
	p, err = s.ValidateToken(admin)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, p.Role)
}

func TestTokenRejections(t *testing.T) {
	s, err := NewService("", "secret")
	require.NoError(t, err)
	other, err := NewService("", "different")
	require.NoError(t, err)

	tok, err := other.GenerateToken(Principal{Role: RoleUser, ID: "usr_1"}, time.Hour)
	require.NoError(t, err)
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := s.GenerateToken(Principal{Role: RoleUser, ID: "usr_1"}, -time.Minute)
	require.NoError(t, err)
	_, err = s.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ValidateToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bogus, err := s.GenerateToken(Principal{Role: "root", ID: "x"}, time.Hour)
	require.NoError(t, err)
	_, err = s.ValidateToken(bogus)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	s, err := NewService("", "secret")
	require.NoError(t, err)

	var seen *Principal
	h := s.Middleware(RoleUser, RoleContact)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Token abc"))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer abc"))

	admin, _ := s.AdminToken()
	assert.Equal(t, http.StatusForbidden, call("Bearer "+admin))

	user, _ := s.GenerateToken(Principal{Role: RoleUser, ID: "usr_1"}, time.Hour)
	assert.Equal(t, http.StatusNoContent, call("Bearer "+user))
	require.NotNil(t, seen)
	assert.Equal(t, "usr_1", seen.ID)
}
