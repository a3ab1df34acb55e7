package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a receipt's amount was received.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCard, PaymentCheque, PaymentOther:
		return true
	}
	return false
}

// Receipt acknowledges a payment. It carries a flat amount instead of line items.
type Receipt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"index" json:"user_id"`
	Number string `gorm:"size:32;uniqueIndex;not null" json:"number"`

	Party
	Links
	Lifecycle

	// Optional invoice being paid
	InvoiceID *uint `gorm:"index" json:"invoice_id,omitempty"`

	ReceiptDate      time.Time       `gorm:"not null" json:"receipt_date"`
	PaymentMethod    PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	PaymentReference string          `gorm:"size:255" json:"payment_reference,omitempty"`
	AmountReceived   decimal.Decimal `gorm:"column:amount;type:numeric;not null" json:"amount"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`
}

func (r *Receipt) Kind() Kind              { return KindReceipt }
func (r *Receipt) DocumentID() uint        { return r.ID }
func (r *Receipt) DocumentNumber() string  { return r.Number }
func (r *Receipt) Owner() uint             { return r.UserID }
func (r *Receipt) Contact() *Party         { return &r.Party }
func (r *Receipt) Context() *Links         { return &r.Links }
func (r *Receipt) State() *Lifecycle       { return &r.Lifecycle }
func (r *Receipt) Amount() decimal.Decimal { return r.AmountReceived }
