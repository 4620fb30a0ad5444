package auth_test

import (
	"testing"
	"time"

	"whiteboard/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret-key"

func TestGenerateAndParseToken(t *testing.T) {
	m := auth.NewManager(testSecret, 24*time.Hour)

	// Генерируем токен
	userID := "test-user-id"
	token, err := m.GenerateToken(userID)

	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Парсим токен
	parsedUserID, err := m.ParseToken(token)

	assert.NoError(t, err)
	assert.Equal(t, userID, parsedUserID)
}

func TestParseToken_InvalidToken(t *testing.T) {
	m := auth.NewManager(testSecret, time.Hour)

	_, err := m.ParseToken("invalid-token")

	assert.Error(t, err)
	assert.Equal(t, "invalid token", err.Error())
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := auth.NewManager("other-secret", time.Hour).GenerateToken("u1")
	assert.NoError(t, err)

	_, err = auth.NewManager(testSecret, time.Hour).ParseToken(token)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseToken_ExpiredToken(t *testing.T) {
	// Создаем токен с истекшим сроком действия
	claims := jwt.MapClaims{
		"user_id": "test-user-id",
		"exp":     time.Now().Add(-1 * time.Hour).Unix(), // Токен истек 1 час назад
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	expiredToken, _ := token.SignedString([]byte(testSecret))

	_, err := auth.NewManager(testSecret, time.Hour).ParseToken(expiredToken)

	assert.Error(t, err)
	assert.Equal(t, "invalid token", err.Error())
}

func TestParseToken_MissingClaims(t *testing.T) {
	// Создаем токен без ID пользователя
	claims := jwt.MapClaims{
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenWithoutUserID, _ := token.SignedString([]byte(testSecret))

	_, err := auth.NewManager(testSecret, time.Hour).ParseToken(tokenWithoutUserID)

	assert.Error(t, err)
	assert.Equal(t, "invalid claims", err.Error())
}

func TestNewLoginToken(t *testing.T) {
	token, hash, err := auth.NewLoginToken()

	assert.NoError(t, err)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, auth.HashLoginToken(token))

	other, _, err := auth.NewLoginToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, other)
}
