package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Board хранит сцену доски целиком: элементы и состояние вида (JSON)
type Board struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Slug      string         `gorm:"uniqueIndex;not null"`
	Name      string         `gorm:"not null"`
	OwnerID   *uuid.UUID     `gorm:"type:uuid;index"`
	IsPublic  bool           `gorm:"not null;default:false"`
	Elements  datatypes.JSON `gorm:"type:jsonb;not null"`
	ViewState datatypes.JSON `gorm:"type:jsonb"`
	Version   int64          `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Owner *User `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL"`
}

// OwnedBy сообщает, является ли пользователь владельцем доски
func (b *Board) OwnedBy(userID uuid.UUID) bool {
	return b.OwnerID != nil && *b.OwnerID == userID
}
