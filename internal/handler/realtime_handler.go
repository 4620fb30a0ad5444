package handler

import (
	"context"
	"log"
	"net/http"

	"whiteboard/internal/middleware"
	"whiteboard/internal/realtime"
	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type RealtimeHandler struct {
	hub            *realtime.Hub
	boardRepo      repository.BoardRepositoryInterface
	boardShareRepo repository.BoardShareRepositoryInterface
	upgrader       websocket.Upgrader
	ctx            context.Context
}

// NewRealtimeHandler; ctx живет столько же, сколько сервер
func NewRealtimeHandler(
	ctx context.Context,
	hub *realtime.Hub,
	boardRepo repository.BoardRepositoryInterface,
	boardShareRepo repository.BoardShareRepositoryInterface,
) *RealtimeHandler {
	return &RealtimeHandler{
		hub:            hub,
		boardRepo:      boardRepo,
		boardShareRepo: boardShareRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx: ctx,
	}
}

// Connect godoc
// @Summary      Join the realtime channel of a board
// @Description  Websocket upgrade. Authorized like a board read; the token may be passed as ?token=.
// @Tags         Realtime
// @Param        board_id path string true "Board ID"
// @Param        token query string false "Session token"
// @Success      101
// @Router       /realtime/{board_id} [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, authenticated := middleware.CurrentUser(c)

	boardID, err := uuid.Parse(c.Param("board_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid board ID format"})
		return
	}

	board, err := h.boardRepo.GetByID(c.Request.Context(), boardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board"})
		return
	}
	if board == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	role, err := resolveRole(c.Request.Context(), h.boardShareRepo, board, userID, authenticated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if role == "" {
		denyAccess(c, authenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Websocket upgrade failed: %v", err)
		return
	}

	session := realtime.Session{CanWrite: canEdit(role)}
	if authenticated {
		session.UserID = userID.String()
	}
	realtime.ServeConn(h.ctx, h.hub, conn, board.ID.String(), session)
}
