package vehicles

import (
	"time"

	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VehicleDTO is the public catalog shape. Its JSON tags match the snapshot the
// shopper client embeds in wishlist and cart entries.
type VehicleDTO struct {
	ID          uuid.UUID              `json:"id"`
	StockNumber string                 `json:"stock_number"`
	VIN         string                 `json:"vin"`
	Make        string                 `json:"make"`
	Model       string                 `json:"model"`
	Year        int                    `json:"year"`
	Trim        *string                `json:"trim,omitempty"`
	BodyStyle   *string                `json:"body_style,omitempty"`
	Mileage     int                    `json:"mileage"`
	Price       decimal.Decimal        `json:"price"`
	Condition   enums.VehicleCondition `json:"condition"`
	Status      enums.VehicleStatus    `json:"status"`
	ImageURL    *string                `json:"image_url,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func FromModel(v *models.Vehicle) *VehicleDTO {
	if v == nil {
		return nil
	}
	return &VehicleDTO{
		ID:          v.ID,
		StockNumber: v.StockNumber,
		VIN:         v.VIN,
		Make:        v.Make,
		Model:       v.Model,
		Year:        v.Year,
		Trim:        v.Trim,
		BodyStyle:   v.BodyStyle,
		Mileage:     v.Mileage,
		Price:       v.Price,
		Condition:   v.Condition,
		Status:      v.Status,
		ImageURL:    v.ImageURL,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

// ListFilters narrow the public inventory listing.
type ListFilters struct {
	Make      string
	MaxPrice  *decimal.Decimal
	Condition *enums.VehicleCondition
	// Status defaults to available when nil.
	Status *enums.VehicleStatus
	Cursor string
	Limit  int
}
