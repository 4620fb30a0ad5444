package repository

import (
	"context"
	"errors"
	"time"

	"whiteboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BoardRepository struct {
	db *gorm.DB
}

type BoardRepositoryInterface interface {
	Create(ctx context.Context, board *model.Board) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Board, error)
	GetBySlug(ctx context.Context, slug string) (*model.Board, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Board, error)
	UpdateMeta(ctx context.Context, id uuid.UUID, name string, isPublic bool) error
	SaveScene(ctx context.Context, id uuid.UUID, elements, viewState datatypes.JSON) (*SceneVersion, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ BoardRepositoryInterface = (*BoardRepository)(nil)

// SceneVersion is what a scene write reports back
type SceneVersion struct {
	Version   int64
	UpdatedAt time.Time
}

func NewBoardRepository(db *gorm.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

func (r *BoardRepository) Create(ctx context.Context, board *model.Board) error {
	if len(board.Elements) == 0 {
		board.Elements = datatypes.JSON("[]")
	}
	err := r.db.WithContext(ctx).Create(board).Error
	if isUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

func (r *BoardRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Board, error) {
	var board model.Board
	if err := r.db.WithContext(ctx).Omit("elements", "view_state").Where("id = ?", id).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &board, nil
}

func (r *BoardRepository) GetBySlug(ctx context.Context, slug string) (*model.Board, error) {
	var board model.Board
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // доска не найдена
		}
		return nil, err
	}
	return &board, nil
}

// ListForUser возвращает доски пользователя: собственные и те, к которым есть доступ.
// Сцена в список не попадает.
func (r *BoardRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Board, error) {
	var boards []model.Board
	shared := r.db.Model(&model.BoardShare{}).Select("board_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Omit("elements", "view_state").
		Where("owner_id = ?", userID).
		Or("id IN (?)", shared).
		Order("updated_at DESC").
		Find(&boards).Error
	return boards, err
}

func (r *BoardRepository) UpdateMeta(ctx context.Context, id uuid.UUID, name string, isPublic bool) error {
	res := r.db.WithContext(ctx).Model(&model.Board{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "is_public": isPublic})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBoardNotFound
	}
	return nil
}

// SaveScene заменяет сцену целиком и увеличивает версию доски
func (r *BoardRepository) SaveScene(ctx context.Context, id uuid.UUID, elements, viewState datatypes.JSON) (*SceneVersion, error) {
	var out []SceneVersion
	err := r.db.WithContext(ctx).Raw(
		`UPDATE boards SET elements = ?, view_state = ?, version = version + 1, updated_at = ? WHERE id = ? RETURNING version, updated_at`,
		elements, viewState, time.Now().UTC(), id,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrBoardNotFound
	}
	return &out[0], nil
}

// Delete удаляет доску; доступы удаляются каскадно
func (r *BoardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Board{}).Error
}
