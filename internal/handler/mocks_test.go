package handler_test

import (
	"context"
	"time"

	"whiteboard/internal/middleware"
	"whiteboard/internal/model"
	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

// Мок репозитория пользователей
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	user := args.Get(0)
	if user == nil {
		return nil, args.Error(1)
	}
	return user.(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	user := args.Get(0)
	if user == nil {
		return nil, args.Error(1)
	}
	return user.(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, avatarURL string) error {
	return m.Called(ctx, id, displayName, avatarURL).Error(0)
}

// Мок репозитория ссылок входа
type MockLoginLinkRepository struct {
	mock.Mock
}

func (m *MockLoginLinkRepository) Create(ctx context.Context, link *model.LoginLink) error {
	return m.Called(ctx, link).Error(0)
}

func (m *MockLoginLinkRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.LoginLink, error) {
	args := m.Called(ctx, tokenHash, now)
	link := args.Get(0)
	if link == nil {
		return nil, args.Error(1)
	}
	return link.(*model.LoginLink), args.Error(1)
}

func (m *MockLoginLinkRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// Мок репозитория досок
type MockBoardRepository struct {
	mock.Mock
}

func (m *MockBoardRepository) Create(ctx context.Context, board *model.Board) error {
	return m.Called(ctx, board).Error(0)
}

func (m *MockBoardRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Board, error) {
	args := m.Called(ctx, id)
	board := args.Get(0)
	if board == nil {
		return nil, args.Error(1)
	}
	return board.(*model.Board), args.Error(1)
}

func (m *MockBoardRepository) GetBySlug(ctx context.Context, slug string) (*model.Board, error) {
	args := m.Called(ctx, slug)
	board := args.Get(0)
	if board == nil {
		return nil, args.Error(1)
	}
	return board.(*model.Board), args.Error(1)
}

func (m *MockBoardRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Board, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Board), args.Error(1)
}

func (m *MockBoardRepository) UpdateMeta(ctx context.Context, id uuid.UUID, name string, isPublic bool) error {
	return m.Called(ctx, id, name, isPublic).Error(0)
}

func (m *MockBoardRepository) SaveScene(ctx context.Context, id uuid.UUID, elements, viewState datatypes.JSON) (*repository.SceneVersion, error) {
	args := m.Called(ctx, id, elements, viewState)
	v := args.Get(0)
	if v == nil {
		return nil, args.Error(1)
	}
	return v.(*repository.SceneVersion), args.Error(1)
}

func (m *MockBoardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// Мок репозитория доступов
type MockBoardShareRepository struct {
	mock.Mock
}

func (m *MockBoardShareRepository) ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role string) error {
	return m.Called(ctx, boardID, userID, role).Error(0)
}

func (m *MockBoardShareRepository) RemoveShare(ctx context.Context, boardID, userID uuid.UUID) error {
	return m.Called(ctx, boardID, userID).Error(0)
}

func (m *MockBoardShareRepository) GetBoardShares(ctx context.Context, boardID uuid.UUID) ([]model.BoardShare, error) {
	args := m.Called(ctx, boardID)
	return args.Get(0).([]model.BoardShare), args.Error(1)
}

func (m *MockBoardShareRepository) GetUserRole(ctx context.Context, boardID, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, boardID, userID)
	return args.String(0), args.Error(1)
}

// asUser подставляет пользователя вместо JWT middleware
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	}
}
