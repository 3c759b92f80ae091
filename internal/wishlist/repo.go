package wishlist

import (
	"context"
	"time"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// AddItem inserts a wishlist entry, ignores duplicates and returns the stored row.
func (r *Repository) AddItem(ctx context.Context, userID, vehicleID uuid.UUID) (*models.WishlistItem, error) {
	if userID == uuid.Nil || vehicleID == uuid.Nil {
		return nil, gorm.ErrInvalidValue
	}

	var item models.WishlistItem
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO wishlist_items (id, user_id, vehicle_id, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id, vehicle_id) DO NOTHING`,
			uuid.New(), userID, vehicleID, time.Now().UTC(),
		).Error; err != nil {
			return err
		}
		return tx.Preload("Vehicle").
			Where("user_id = ? AND vehicle_id = ?", userID, vehicleID).
			First(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveItem deletes the caller's row if it exists.
func (r *Repository) RemoveItem(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.WishlistItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListItems returns a page of the user's saved vehicles, newest first.
func (r *Repository) ListItems(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.WishlistItem, string, error) {
	decoded, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Preload("Vehicle").
		Where("user_id = ?", userID)
	var rows []models.WishlistItem
	if err := decoded.Seek(query).
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, limit, func(item models.WishlistItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
	})
	return page, next, nil
}
