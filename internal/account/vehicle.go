package account

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Vehicle is the denormalized catalog snapshot embedded in wishlist and cart entries.
type Vehicle struct {
	ID          string          `json:"id"`
	StockNumber string          `json:"stock_number,omitempty"`
	VIN         string          `json:"vin,omitempty"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	Year        int             `json:"year"`
	Trim        string          `json:"trim,omitempty"`
	Mileage     int             `json:"mileage"`
	Price       decimal.Decimal `json:"price"`
	Condition   string          `json:"condition,omitempty"`
	Status      string          `json:"status,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Title renders "2024 Toyota Camry XSE".
func (v Vehicle) Title() string {
	parts := []string{}
	if v.Year > 0 {
		parts = append(parts, fmt.Sprint(v.Year))
	}
	for _, p := range []string{v.Make, v.Model, v.Trim} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return v.ID
	}
	return strings.Join(parts, " ")
}

// Summary is the one-line description stored on inquiry records.
func (v Vehicle) Summary() string {
	var b strings.Builder
	b.WriteString(v.Title())
	if v.StockNumber != "" {
		b.WriteString(" (stock #")
		b.WriteString(v.StockNumber)
		b.WriteString(")")
	}
	if !v.Price.IsZero() {
		b.WriteString(" listed at $")
		b.WriteString(v.Price.StringFixed(2))
	}
	return b.String()
}

// decodeRow maps a record store row onto dst through its JSON tags.
func decodeRow(row Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
