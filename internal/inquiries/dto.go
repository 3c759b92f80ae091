package inquiries

import (
	"time"

	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
)

// RequestDTO is the custom request shape returned to shoppers and staff.
type RequestDTO struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	VehicleID      *uuid.UUID          `json:"vehicle_id,omitempty"`
	InquiryType    enums.InquiryType   `json:"inquiry_type"`
	Status         enums.RequestStatus `json:"status"`
	Subject        string              `json:"subject"`
	Message        string              `json:"message"`
	VehicleSummary *string             `json:"vehicle_summary,omitempty"`
	Quantity       int                 `json:"quantity"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func fromModel(r *models.CustomRequest) *RequestDTO {
	return &RequestDTO{
		ID:             r.ID,
		UserID:         r.UserID,
		VehicleID:      r.VehicleID,
		InquiryType:    r.InquiryType,
		Status:         r.Status,
		Subject:        r.Subject,
		Message:        r.Message,
		VehicleSummary: r.VehicleSummary,
		Quantity:       r.Quantity,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// CreateRequest is the POST body for a new inquiry.
type CreateRequest struct {
	VehicleID      *string `json:"vehicle_id" validate:"omitempty,uuid"`
	InquiryType    string  `json:"inquiry_type" validate:"required,oneof=general purchase test_drive financing"`
	Subject        string  `json:"subject" validate:"required,max=200"`
	Message        string  `json:"message" validate:"required,max=4000"`
	VehicleSummary *string `json:"vehicle_summary" validate:"omitempty,max=500"`
	Quantity       int     `json:"quantity" validate:"omitempty,min=1,max=99"`
}

// CreateInput adds the caller and idempotency key to a CreateRequest.
type CreateInput struct {
	UserID         uuid.UUID
	Request        CreateRequest
	IdempotencyKey string
}

// OwnerUpdate is what a shopper may change on their own pending request.
type OwnerUpdate struct {
	Message *string `json:"message" validate:"omitempty,min=1,max=4000"`
	Cancel  bool    `json:"cancel"`
}

// StatusUpdate is the admin PATCH body.
type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=pending contacted closed cancelled"`
}

// AdminListFilters narrow the staff request queue.
type AdminListFilters struct {
	Status *enums.RequestStatus
	Cursor string
	Limit  int
}
