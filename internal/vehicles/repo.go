package vehicles

import (
	"context"
	"strings"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads dealership inventory.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads a vehicle regardless of status.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := r.DB(ctx).First(&vehicle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// Exists reports whether a vehicle row with id is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Vehicle{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns vehicles newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Vehicle, string, error) {
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	status := enums.VehicleStatusAvailable
	if filters.Status != nil {
		status = *filters.Status
	}
	query := r.DB(ctx).Model(&models.Vehicle{}).Where("status = ?", status)
	if makeName := strings.TrimSpace(filters.Make); makeName != "" {
		query = query.Where("LOWER(make) = ?", strings.ToLower(makeName))
	}
	if filters.MaxPrice != nil {
		query = query.Where("price <= ?", *filters.MaxPrice)
	}
	if filters.Condition != nil {
		query = query.Where("condition = ?", *filters.Condition)
	}
	var rows []models.Vehicle
	if err := cursor.Seek(query).
		Limit(pagination.LimitWithBuffer(filters.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, filters.Limit, func(v models.Vehicle) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return page, next, nil
}
