package wishlist

import (
	"time"

	"github.com/dealerhub/showroom/internal/vehicles"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/google/uuid"
)

// ItemDTO is a saved vehicle row with its catalog snapshot.
type ItemDTO struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"user_id"`
	VehicleID uuid.UUID            `json:"vehicle_id"`
	CreatedAt time.Time            `json:"created_at"`
	Vehicle   *vehicles.VehicleDTO `json:"vehicle,omitempty"`
}

// AddItemRequest is the POST body for saving a vehicle.
type AddItemRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required,uuid"`
}

func fromModel(item models.WishlistItem) ItemDTO {
	return ItemDTO{
		ID:        item.ID,
		UserID:    item.UserID,
		VehicleID: item.VehicleID,
		CreatedAt: item.CreatedAt,
		Vehicle:   vehicles.FromModel(item.Vehicle),
	}
}
