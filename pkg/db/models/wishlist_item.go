package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WishlistItem links a user to a saved vehicle.
type WishlistItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:wishlist_items_user_id_idx;uniqueIndex:wishlist_items_user_vehicle_key"`
	VehicleID uuid.UUID `gorm:"column:vehicle_id;type:uuid;not null;uniqueIndex:wishlist_items_user_vehicle_key"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`

	Vehicle *Vehicle `gorm:"foreignKey:VehicleID;references:ID"`
}

func (w *WishlistItem) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
