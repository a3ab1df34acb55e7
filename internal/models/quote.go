package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is an estimate that can be converted into an invoice.
type Quote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"index" json:"user_id"`
	Number string `gorm:"size:32;uniqueIndex;not null" json:"number"`

	Party
	Links
	Lifecycle

	Subtotal        decimal.Decimal `gorm:"type:numeric;not null" json:"subtotal"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric;not null" json:"discount_percent"`
	TaxPercent      decimal.Decimal `gorm:"type:numeric;not null" json:"tax_percent"`
	Total           decimal.Decimal `gorm:"type:numeric;not null" json:"total"`

	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Notes      string     `gorm:"type:text" json:"notes,omitempty"`

	ConvertedToInvoiceID *uint `json:"converted_to_invoice_id,omitempty"`

	LineItems []LineItem `gorm:"polymorphic:Owner;polymorphicValue:quote" json:"line_items,omitempty"`
}

func (q *Quote) Kind() Kind              { return KindQuote }
func (q *Quote) DocumentID() uint        { return q.ID }
func (q *Quote) DocumentNumber() string  { return q.Number }
func (q *Quote) Owner() uint             { return q.UserID }
func (q *Quote) Contact() *Party         { return &q.Party }
func (q *Quote) Context() *Links         { return &q.Links }
func (q *Quote) State() *Lifecycle       { return &q.Lifecycle }
func (q *Quote) Amount() decimal.Decimal { return q.Total }

// IsConverted reports whether an invoice was already produced from the quote.
func (q *Quote) IsConverted() bool {
	return q.Status == StatusInvoiced || q.ConvertedToInvoiceID != nil
}
