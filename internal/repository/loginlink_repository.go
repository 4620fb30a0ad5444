package repository

import (
	"context"
	"errors"
	"time"

	"whiteboard/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoginLinkRepository struct {
	db *gorm.DB
}

type LoginLinkRepositoryInterface interface {
	Create(ctx context.Context, link *model.LoginLink) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*model.LoginLink, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ LoginLinkRepositoryInterface = (*LoginLinkRepository)(nil)

func NewLoginLinkRepository(db *gorm.DB) *LoginLinkRepository {
	return &LoginLinkRepository{db: db}
}

func (r *LoginLinkRepository) Create(ctx context.Context, link *model.LoginLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// Consume помечает ссылку использованной. Ссылка срабатывает ровно один раз.
func (r *LoginLinkRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.LoginLink, error) {
	var link model.LoginLink
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", tokenHash).
			First(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLoginLinkInvalid
		}
		if err != nil {
			return err
		}
		if !link.Usable(now) {
			return ErrLoginLinkInvalid
		}
		link.UsedAt = &now
		return tx.Model(&link).Update("used_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// PurgeExpired удаляет использованные и просроченные ссылки
func (r *LoginLinkRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", now).
		Delete(&model.LoginLink{})
	return res.RowsAffected, res.Error
}
