package users

import (
	"context"
	"strings"
	"time"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	dbtypes "github.com/dealerhub/showroom/pkg/db/types"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdateMetadata overwrites the metadata document.
func (r *Repository) UpdateMetadata(ctx context.Context, id uuid.UUID, meta dbtypes.JSONMap) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"metadata": meta, "updated_at": time.Now().UTC()}).Error
}

// List returns users newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.User, string, error) {
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.DB(ctx).Model(&models.User{})
	if email := strings.TrimSpace(filters.Email); email != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	var rows []models.User
	if err := cursor.Seek(query).
		Limit(pagination.LimitWithBuffer(filters.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, filters.Limit, func(u models.User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return page, next, nil
}
