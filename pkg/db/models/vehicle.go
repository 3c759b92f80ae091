package models

import (
	"time"

	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vehicle is a unit of dealership inventory.
type Vehicle struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	StockNumber string                 `gorm:"column:stock_number;not null;uniqueIndex"`
	VIN         string                 `gorm:"column:vin;not null;uniqueIndex"`
	Make        string                 `gorm:"column:make;not null;index:vehicles_make_model_idx"`
	Model       string                 `gorm:"column:model;not null;index:vehicles_make_model_idx"`
	Year        int                    `gorm:"column:year;not null"`
	Trim        *string                `gorm:"column:trim"`
	BodyStyle   *string                `gorm:"column:body_style"`
	Mileage     int                    `gorm:"column:mileage;not null;default:0"`
	Price       decimal.Decimal        `gorm:"column:price;type:numeric(12,2);not null"`
	Condition   enums.VehicleCondition `gorm:"column:condition;type:text;not null"`
	Status      enums.VehicleStatus    `gorm:"column:status;type:text;not null;default:available"`
	ImageURL    *string                `gorm:"column:image_url"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
