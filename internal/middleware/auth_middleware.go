package middleware

import (
	"net/http"
	"strings"

	"whiteboard/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const UserIDKey = "user_id"

// JWTAuthMiddleware пропускает только запросы с валидным токеном.
// Браузер не может передать заголовок при открытии websocket, поэтому
// для upgrade-запросов токен принимается и из ?token=.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	m := auth.NewManager(secret, 0)
	return func(c *gin.Context) {
		tokenStr, msg := bearerToken(c)
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		userID, msg := authenticate(m, tokenStr)
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// OptionalJWTAuth определяет пользователя, если токен есть, но не требует его.
// Нужен для публичных досок.
func OptionalJWTAuth(secret string) gin.HandlerFunc {
	m := auth.NewManager(secret, 0)
	return func(c *gin.Context) {
		tokenStr, msg := bearerToken(c)
		if msg == "" {
			if userID, msg := authenticate(m, tokenStr); msg == "" {
				c.Set(UserIDKey, userID)
			}
		}
		c.Next()
	}
}

// CurrentUser достает ID пользователя, установленный middleware
func CurrentUser(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" && isWebsocketUpgrade(c.Request) {
			return token, ""
		}
		return "", "Authorization header is required"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "Authorization header format must be Bearer {token}"
	}
	return parts[1], ""
}

func authenticate(m *auth.Manager, tokenStr string) (uuid.UUID, string) {
	raw, err := m.ParseToken(tokenStr)
	if err != nil {
		return uuid.Nil, "Invalid or expired token"
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "Invalid user ID in token"
	}
	return userID, ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
