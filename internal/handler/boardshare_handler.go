package handler

import (
	"net/http"
	"strings"

	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BoardShareHandler struct {
	boardRepo      repository.BoardRepositoryInterface
	userRepo       repository.UserRepositoryInterface
	boardShareRepo repository.BoardShareRepositoryInterface
}

func NewBoardShareHandler(
	boardRepo repository.BoardRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	boardShareRepo repository.BoardShareRepositoryInterface,
) *BoardShareHandler {
	return &BoardShareHandler{
		boardRepo:      boardRepo,
		userRepo:       userRepo,
		boardShareRepo: boardShareRepo,
	}
}

// ShareBoardRequest представляет запрос на предоставление доступа к доске
type ShareBoardRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=viewer editor"`
}

// BoardShareResponse представляет информацию о пользователе с доступом к доске
type BoardShareResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ShareBoard предоставляет доступ к доске по email пользователя
func (h *BoardShareHandler) ShareBoard(c *gin.Context) {
	authenticatedUserID, ok := requireUser(c)
	if !ok {
		return
	}

	var req ShareBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}

	// Только владелец может управлять доступом
	if !board.OwnedBy(authenticatedUserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the board owner can share the board"})
		return
	}

	ctx := c.Request.Context()
	targetUser, err := h.userRepo.FindByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find user"})
		return
	}
	if targetUser == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if targetUser.ID == authenticatedUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot share board with yourself"})
		return
	}

	if err := h.boardShareRepo.ShareBoard(ctx, board.ID, targetUser.ID, req.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to share board"})
		return
	}

	c.JSON(http.StatusOK, BoardShareResponse{
		UserID:      targetUser.ID.String(),
		Email:       targetUser.Email,
		DisplayName: targetUser.DisplayName,
		Role:        req.Role,
	})
}

// RemoveShare отзывает доступ пользователя
func (h *BoardShareHandler) RemoveShare(c *gin.Context) {
	authenticatedUserID, ok := requireUser(c)
	if !ok {
		return
	}

	targetUserID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}

	if !board.OwnedBy(authenticatedUserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the board owner can remove access"})
		return
	}

	if targetUserID == authenticatedUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove access from yourself"})
		return
	}

	if err := h.boardShareRepo.RemoveShare(c.Request.Context(), board.ID, targetUserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove access"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetBoardShares возвращает список пользователей с доступом к доске
func (h *BoardShareHandler) GetBoardShares(c *gin.Context) {
	authenticatedUserID, ok := requireUser(c)
	if !ok {
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}

	if !board.OwnedBy(authenticatedUserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the board owner can view access list"})
		return
	}

	shares, err := h.boardShareRepo.GetBoardShares(c.Request.Context(), board.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board shares"})
		return
	}

	response := make([]BoardShareResponse, 0, len(shares))
	for _, share := range shares {
		response = append(response, BoardShareResponse{
			UserID:      share.UserID.String(),
			Email:       share.User.Email,
			DisplayName: share.User.DisplayName,
			Role:        share.Role,
		})
	}

	c.JSON(http.StatusOK, response)
}
