package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice represents a billing invoice.
type Invoice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the owner of this invoice
	UserID uint `gorm:"index" json:"user_id"`

	// Invoice identification
	Number string `gorm:"size:32;uniqueIndex;not null" json:"number"`

	Party
	Links
	Lifecycle

	// Amounts
	Subtotal        decimal.Decimal `gorm:"type:numeric;not null" json:"subtotal"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric;not null" json:"discount_percent"`
	TaxPercent      decimal.Decimal `gorm:"type:numeric;not null" json:"tax_percent"`
	Total           decimal.Decimal `gorm:"type:numeric;not null" json:"total"`

	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   string     `gorm:"type:text" json:"notes,omitempty"`

	// SourceQuoteID is set when the invoice was converted from a quote
	SourceQuoteID *uint `gorm:"index" json:"source_quote_id,omitempty"`

	LineItems []LineItem `gorm:"polymorphic:Owner;polymorphicValue:invoice" json:"line_items,omitempty"`
}

func (i *Invoice) Kind() Kind              { return KindInvoice }
func (i *Invoice) DocumentID() uint        { return i.ID }
func (i *Invoice) DocumentNumber() string  { return i.Number }
func (i *Invoice) Owner() uint             { return i.UserID }
func (i *Invoice) Contact() *Party         { return &i.Party }
func (i *Invoice) Context() *Links         { return &i.Links }
func (i *Invoice) State() *Lifecycle       { return &i.Lifecycle }
func (i *Invoice) Amount() decimal.Decimal { return i.Total }

// CanEdit returns true if the invoice can still be edited.
func (i *Invoice) CanEdit() bool {
	return i.Status == StatusDraft
}
