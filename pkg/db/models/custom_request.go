package models

import (
	"time"

	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomRequest is a shopper inquiry routed to the sales team.
type CustomRequest struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:custom_requests_user_id_idx"`
	VehicleID      *uuid.UUID          `gorm:"column:vehicle_id;type:uuid"`
	InquiryType    enums.InquiryType   `gorm:"column:inquiry_type;type:text;not null"`
	Status         enums.RequestStatus `gorm:"column:status;type:text;not null;default:pending;index:custom_requests_status_idx"`
	Subject        string              `gorm:"column:subject;not null"`
	Message        string              `gorm:"column:message;not null"`
	VehicleSummary *string             `gorm:"column:vehicle_summary"`
	Quantity       int                 `gorm:"column:quantity;not null;default:1"`
	IdempotencyKey *string             `gorm:"column:idempotency_key;uniqueIndex:custom_requests_idempotency_key"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *CustomRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = enums.RequestStatusPending
	}
	return nil
}
