package jwt

import (
	"testing"
	"time"

	"github.com/babbling-brook/streambed/shared/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenRoundTrip(t *testing.T) {
	svc := New("secret", time.Hour)

	tokenStr, err := svc.NewToken(domain.User{Username: "sky", Domain: "a.com"})
	require.NoError(t, err)

	token, err := svc.DecodeToken(tokenStr)
	require.NoError(t, err)

	user, ok := UserFromToken(token)
	require.True(t, ok)
	assert.Equal(t, "sky", user.Username)
	assert.Equal(t, "a.com", user.Domain)
}

func TestDecodeToken_WrongKey(t *testing.T) {
	tokenStr, err := New("secret", time.Hour).NewToken(domain.User{Username: "sky"})
	require.NoError(t, err)

	_, err = New("other", time.Hour).DecodeToken(tokenStr)
	assert.Error(t, err)
}

func TestDecodeToken_Expired(t *testing.T) {
	tokenStr, err := New("secret", -time.Minute).NewToken(domain.User{Username: "sky"})
	require.NoError(t, err)

	_, err = New("secret", time.Hour).DecodeToken(tokenStr)
	assert.Error(t, err)
}

func TestUserFromToken_MissingUsername(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"domain": "a.com"})
	_, ok := UserFromToken(token)
	assert.False(t, ok)
}
