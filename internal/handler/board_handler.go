package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"whiteboard/internal/middleware"
	"whiteboard/internal/model"
	"whiteboard/internal/repository"
	"whiteboard/internal/scene"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)

type BoardHandler struct {
	boardRepo      repository.BoardRepositoryInterface
	boardShareRepo repository.BoardShareRepositoryInterface
	maxElements    int
}

func NewBoardHandler(
	boardRepo repository.BoardRepositoryInterface,
	boardShareRepo repository.BoardShareRepositoryInterface,
	maxElements int,
) *BoardHandler {
	return &BoardHandler{
		boardRepo:      boardRepo,
		boardShareRepo: boardShareRepo,
		maxElements:    maxElements,
	}
}

type CreateBoardRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Slug     string `json:"slug" binding:"required"`
	IsPublic bool   `json:"is_public"`
}

type UpdateBoardRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	IsPublic bool   `json:"is_public"`
}

type SaveSceneRequest struct {
	Elements  json.RawMessage `json:"elements" binding:"required"`
	ViewState json.RawMessage `json:"view_state"`
}

type BoardResponse struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id,omitempty"`
	IsPublic  bool   `json:"is_public"`
	Version   int64  `json:"version"`
	Role      string `json:"role,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// BoardDetailResponse доска вместе со сценой
type BoardDetailResponse struct {
	BoardResponse
	Elements  json.RawMessage `json:"elements"`
	ViewState json.RawMessage `json:"view_state,omitempty"`
}

type SceneVersionResponse struct {
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
}

func toBoardResponse(b *model.Board, role string) BoardResponse {
	resp := BoardResponse{
		ID:        b.ID.String(),
		Slug:      b.Slug,
		Name:      b.Name,
		IsPublic:  b.IsPublic,
		Version:   b.Version,
		Role:      role,
		UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if b.OwnerID != nil {
		resp.OwnerID = b.OwnerID.String()
	}
	return resp
}

// Create godoc
// @Summary      Create a board
// @Tags         Boards
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreateBoardRequest true "Board"
// @Success      201 {object} BoardResponse
// @Failure      409 {object} map[string]string
// @Router       /boards [post]
func (h *BoardHandler) Create(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Slug must be 3-64 characters of a-z, 0-9 and '-'"})
		return
	}

	board := &model.Board{
		Slug:     req.Slug,
		Name:     req.Name,
		OwnerID:  &ownerID,
		IsPublic: req.IsPublic,
	}

	err := h.boardRepo.Create(c.Request.Context(), board)
	if errors.Is(err, repository.ErrSlugTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "Board with this slug already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create board"})
		return
	}

	c.JSON(http.StatusCreated, toBoardResponse(board, model.RoleOwner))
}

// GetAll возвращает собственные доски и доски, к которым открыт доступ
func (h *BoardHandler) GetAll(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	boards, err := h.boardRepo.ListForUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve boards"})
		return
	}

	response := make([]BoardResponse, len(boards))
	for i := range boards {
		role, err := resolveRole(ctx, h.boardShareRepo, &boards[i], userID, true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve boards"})
			return
		}
		response[i] = toBoardResponse(&boards[i], role)
	}

	c.JSON(http.StatusOK, response)
}

// GetBySlug godoc
// @Summary      Get a board with its scene
// @Tags         Boards
// @Security     BearerAuth
// @Produce      json
// @Param        slug path string true "Board slug"
// @Success      200 {object} BoardDetailResponse
// @Failure      401 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /boards/{slug} [get]
func (h *BoardHandler) GetBySlug(c *gin.Context) {
	userID, authenticated := middleware.CurrentUser(c)

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
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

	elements := json.RawMessage(board.Elements)
	if len(elements) == 0 {
		elements = json.RawMessage("[]")
	}
	c.JSON(http.StatusOK, BoardDetailResponse{
		BoardResponse: toBoardResponse(board, role),
		Elements:      elements,
		ViewState:     json.RawMessage(board.ViewState),
	})
}

func (h *BoardHandler) Update(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}
	if !board.OwnedBy(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the board owner can update the board"})
		return
	}

	if err := h.boardRepo.UpdateMeta(c.Request.Context(), board.ID, req.Name, req.IsPublic); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update board"})
		return
	}

	board.Name = req.Name
	board.IsPublic = req.IsPublic
	c.JSON(http.StatusOK, toBoardResponse(board, model.RoleOwner))
}

func (h *BoardHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}
	if !board.OwnedBy(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the board owner can delete the board"})
		return
	}

	if err := h.boardRepo.Delete(c.Request.Context(), board.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete board"})
		return
	}

	c.Status(http.StatusNoContent)
}

// SaveScene godoc
// @Summary      Replace the board scene
// @Description  Whole-scene write. Owner or editor only. Increments the board version.
// @Tags         Boards
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        slug path string true "Board slug"
// @Param        request body SaveSceneRequest true "Scene"
// @Success      200 {object} SceneVersionResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Router       /boards/{slug}/scene [put]
func (h *BoardHandler) SaveScene(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SaveSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Проверка сцены на границе: массив, лимит элементов, уникальные id, view state объект
	if !bytes.HasPrefix(bytes.TrimSpace(req.Elements), []byte("[")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "elements must be an array"})
		return
	}
	var elements []scene.Element
	if err := json.Unmarshal(req.Elements, &elements); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid elements"})
		return
	}
	if err := scene.Validate(scene.Scene{Elements: elements, ViewState: req.ViewState}, h.maxElements); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	board, ok := loadBoard(c, h.boardRepo)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	role, err := resolveRole(ctx, h.boardShareRepo, board, userID, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !canEdit(role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to edit this board"})
		return
	}

	var viewState datatypes.JSON
	if trimmed := bytes.TrimSpace(req.ViewState); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		viewState = datatypes.JSON(trimmed)
	}

	v, err := h.boardRepo.SaveScene(ctx, board.ID, datatypes.JSON(req.Elements), viewState)
	if errors.Is(err, repository.ErrBoardNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save scene"})
		return
	}

	c.JSON(http.StatusOK, SceneVersionResponse{
		Version:   v.Version,
		UpdatedAt: v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}
