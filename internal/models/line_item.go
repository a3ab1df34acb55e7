package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is a priced line owned by exactly one invoice or quote.
type LineItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Polymorphic owner: owner_type is the document kind.
	OwnerID   uint   `gorm:"index:idx_line_items_owner;not null" json:"-"`
	OwnerType string `gorm:"size:20;index:idx_line_items_owner;not null" json:"-"`

	Description     string          `gorm:"size:500;not null" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric;not null" json:"unit_price"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric;not null" json:"discount_percent"`
	Total           decimal.Decimal `gorm:"type:numeric;not null" json:"total"`

	// Position for ordering
	Position int `gorm:"not null" json:"position"`
}
