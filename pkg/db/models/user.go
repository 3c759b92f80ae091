package models

import (
	"time"

	dbtypes "github.com/dealerhub/showroom/pkg/db/types"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a shopper or staff account.
type User struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email        string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string          `gorm:"column:password_hash;not null"`
	FullName     string          `gorm:"column:full_name;not null"`
	Phone        *string         `gorm:"column:phone"`
	Metadata     dbtypes.JSONMap `gorm:"column:metadata;type:jsonb;not null"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time      `gorm:"column:last_login_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Role reads the role tag from metadata. An empty result means unassigned.
func (u User) Role() enums.Role {
	return enums.Role(u.Metadata.String(MetadataKeyRole))
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Metadata == nil {
		u.Metadata = dbtypes.JSONMap{}
	}
	return nil
}

// MetadataKeyRole is the metadata key holding the account role.
const MetadataKeyRole = "role"
