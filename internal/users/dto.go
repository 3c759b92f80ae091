package users

import (
	"time"

	"github.com/dealerhub/showroom/pkg/db/models"
	dbtypes "github.com/dealerhub/showroom/pkg/db/types"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
)

// UserDTO is the transport shape that omits sensitive credentials. Role is
// empty until one has been assigned.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	FullName    string         `json:"full_name"`
	Phone       *string        `json:"phone,omitempty"`
	Role        enums.Role     `json:"role,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	IsActive    bool           `json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        *string
	Metadata     map[string]any
	IsActive     *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	meta := make(map[string]any, len(u.Metadata))
	for k, v := range u.Metadata {
		meta[k] = v
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Phone:       u.Phone,
		Role:        u.Role(),
		Metadata:    meta,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	meta := dbtypes.JSONMap{}
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FullName:     c.FullName,
		Phone:        c.Phone,
		Metadata:     meta,
		IsActive:     isActive,
	}
}

// ListFilters narrows the admin user listing.
type ListFilters struct {
	Email  string
	Cursor string
	Limit  int
}
