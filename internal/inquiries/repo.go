package inquiries

import (
	"context"
	"time"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists custom requests.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, req *models.CustomRequest) error {
	return r.DB(ctx).Create(req).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CustomRequest, error) {
	var req models.CustomRequest
	if err := r.DB(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByIdempotencyKey returns gorm.ErrRecordNotFound when key is unused.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.CustomRequest, error) {
	var req models.CustomRequest
	if err := r.DB(ctx).First(&req, "idempotency_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return r.DB(ctx).Model(&models.CustomRequest{}).Where("id = ?", id).Updates(fields).Error
}

// List pages requests newest first. A nil userID lists every user.
func (r *Repository) List(ctx context.Context, userID *uuid.UUID, status *enums.RequestStatus, cursor string, limit int) ([]models.CustomRequest, string, error) {
	decoded, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.DB(ctx).Model(&models.CustomRequest{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.CustomRequest
	if err := decoded.Seek(query).
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, limit, func(req models.CustomRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: req.CreatedAt, ID: req.ID}
	})
	return page, next, nil
}
