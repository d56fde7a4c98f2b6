package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) *AuthService {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService("admin", string(hash), "test-secret")
}

func TestAuthService_Login(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(LoginRequest{Username: "admin", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Username)

	claims, err := auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestAuthService_Login_Rejected(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Login(LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.Login(LoginRequest{Username: "root", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	unset := NewAuthService("", "", "secret")
	_, err = unset.Login(LoginRequest{Username: "", Password: ""})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_ValidateToken_Expired(t *testing.T) {
	auth := newTestAuth(t)
	auth.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	resp, err := auth.Issue("admin")
	require.NoError(t, err)

	auth.now = time.Now
	_, err = auth.ValidateToken(resp.Token)
	assert.Error(t, err)
}

func TestAuthService_ValidateToken_WrongSecret(t *testing.T) {
	resp, err := newTestAuth(t).Issue("admin")
	require.NoError(t, err)

	other := NewAuthService("admin", "", "other-secret")
	_, err = other.ValidateToken(resp.Token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = ExtractTokenFromHeader("")
	assert.Error(t, err)
	_, err = ExtractTokenFromHeader("Basic abc")
	assert.Error(t, err)
}
