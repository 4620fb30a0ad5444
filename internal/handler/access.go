package handler

import (
	"context"
	"net/http"

	"whiteboard/internal/middleware"
	"whiteboard/internal/model"
	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requireUser достает пользователя из контекста или отвечает 401
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return uuid.Nil, false
	}
	return userID, true
}

// loadBoard ищет доску по slug из URL; при ошибке ответ уже отправлен
func loadBoard(c *gin.Context, boards repository.BoardRepositoryInterface) (*model.Board, bool) {
	board, err := boards.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board"})
		return nil, false
	}
	if board == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return nil, false
	}
	return board, true
}

// resolveRole возвращает роль пользователя на доске: owner, роль из доступа,
// viewer для публичной доски или пустую строку
func resolveRole(ctx context.Context, shares repository.BoardShareRepositoryInterface, board *model.Board, userID uuid.UUID, authenticated bool) (string, error) {
	if authenticated {
		if board.OwnedBy(userID) {
			return model.RoleOwner, nil
		}
		role, err := shares.GetUserRole(ctx, board.ID, userID)
		if err != nil {
			return "", err
		}
		if role != "" {
			return role, nil
		}
	}
	if board.IsPublic {
		return model.RoleViewer, nil
	}
	return "", nil
}

// denyAccess отвечает 401 анонимному пользователю и 403 остальным
func denyAccess(c *gin.Context, authenticated bool) {
	if !authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to access this board"})
}

func canEdit(role string) bool {
	return role == model.RoleOwner || role == model.RoleEditor
}
