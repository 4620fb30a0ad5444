package repository

import (
	"context"
	"errors"

	"whiteboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BoardShareRepository struct {
	db *gorm.DB
}

type BoardShareRepositoryInterface interface {
	ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role string) error
	RemoveShare(ctx context.Context, boardID, userID uuid.UUID) error
	GetBoardShares(ctx context.Context, boardID uuid.UUID) ([]model.BoardShare, error)
	GetUserRole(ctx context.Context, boardID, userID uuid.UUID) (string, error)
}

var _ BoardShareRepositoryInterface = (*BoardShareRepository)(nil)

func NewBoardShareRepository(db *gorm.DB) *BoardShareRepository {
	return &BoardShareRepository{db: db}
}

// ShareBoard добавляет пользователя к доске с указанной ролью
func (r *BoardShareRepository) ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role string) error {
	share := model.BoardShare{
		BoardID: boardID,
		UserID:  userID,
		Role:    role,
	}

	// Используем транзакцию для предотвращения гонок
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existingShare model.BoardShare
		err := tx.Where("board_id = ? AND user_id = ?", boardID, userID).First(&existingShare).Error

		// Если запись уже существует, обновляем роль
		if err == nil {
			return tx.Model(&existingShare).Update("role", role).Error
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(&share).Error
	})
}

// RemoveShare удаляет доступ пользователя к доске
func (r *BoardShareRepository) RemoveShare(ctx context.Context, boardID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("board_id = ? AND user_id = ?", boardID, userID).Delete(&model.BoardShare{}).Error
}

// GetBoardShares возвращает список пользователей с доступом к доске
func (r *BoardShareRepository) GetBoardShares(ctx context.Context, boardID uuid.UUID) ([]model.BoardShare, error) {
	var shares []model.BoardShare

	err := r.db.WithContext(ctx).
		Preload("User").
		Where("board_id = ?", boardID).
		Find(&shares).Error

	return shares, err
}

// GetUserRole возвращает роль пользователя для доски (или пустую строку, если нет доступа)
func (r *BoardShareRepository) GetUserRole(ctx context.Context, boardID, userID uuid.UUID) (string, error) {
	var share model.BoardShare

	err := r.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&share).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil // Пользователь не имеет доступа
	}

	if err != nil {
		return "", err
	}

	return share.Role, nil
}
