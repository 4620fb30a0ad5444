package handler

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whiteboard/internal/auth"
	"whiteboard/internal/middleware"
	"whiteboard/internal/model"
	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	userRepo  repository.UserRepositoryInterface
	linkRepo  repository.LoginLinkRepositoryInterface
	tokens    *auth.Manager
	linkTTL   time.Duration
	publicURL string
	now       func() time.Time
}

func NewAuthHandler(
	userRepo repository.UserRepositoryInterface,
	linkRepo repository.LoginLinkRepositoryInterface,
	tokens *auth.Manager,
	linkTTL time.Duration,
	publicURL string,
) *AuthHandler {
	return &AuthHandler{
		userRepo:  userRepo,
		linkRepo:  linkRepo,
		tokens:    tokens,
		linkTTL:   linkTTL,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

type LoginLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=64"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// RequestLoginLink godoc
// @Summary      Request a single-use login link
// @Tags         Auth
// @Accept       json
// @Param        request body LoginLinkRequest true "Email"
// @Success      202
// @Router       /auth/login-link [post]
func (h *AuthHandler) RequestLoginLink(c *gin.Context) {
	var req LoginLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, hash, err := auth.NewLoginToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create login link"})
		return
	}

	link := &model.LoginLink{
		Email:     strings.ToLower(req.Email),
		TokenHash: hash,
		ExpiresAt: h.now().Add(h.linkTTL),
	}
	if err := h.linkRepo.Create(c.Request.Context(), link); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create login link"})
		return
	}

	// Отправка почты вне сервиса: ссылка пишется в лог
	log.Printf("✉️  Login link for %s: %s/auth/verify?token=%s\n", link.Email, h.publicURL, url.QueryEscape(token))

	// Ответ одинаковый для любого email
	c.JSON(http.StatusAccepted, gin.H{"message": "If the address is valid, a login link has been sent"})
}

// Verify godoc
// @Summary      Exchange a login link token for a session
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyRequest true "Login token"
// @Success      200 {object} AuthResponse
// @Failure      401 {object} map[string]string
// @Router       /auth/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	link, err := h.linkRepo.Consume(ctx, auth.HashLoginToken(req.Token), h.now())
	if errors.Is(err, repository.ErrLoginLinkInvalid) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login link"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify login link"})
		return
	}

	user, err := h.userRepo.FindByEmail(ctx, link.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify login link"})
		return
	}

	// Первый вход создает пользователя
	if user == nil {
		user = &model.User{
			Email:       link.Email,
			DisplayName: strings.SplitN(link.Email, "@", 2)[0],
		}
		if err := h.userRepo.Create(ctx, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
	}

	token, err := h.tokens.GenerateToken(user.ID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: toUserResponse(user)})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	if err := h.userRepo.UpdateProfile(ctx, userID, strings.TrimSpace(req.DisplayName), req.AvatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	user, err := h.userRepo.GetByID(ctx, userID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

// SignOut: токен без состояния, клиент просто забывает его
func (h *AuthHandler) SignOut(c *gin.Context) {
	if _, ok := c.Get(middleware.UserIDKey); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.Status(http.StatusNoContent)
}
