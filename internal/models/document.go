package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Kind identifies one of the three billing document variants.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindQuote   Kind = "quote"
	KindReceipt Kind = "receipt"
)

// Kinds lists every document kind.
var Kinds = []Kind{KindInvoice, KindQuote, KindReceipt}

// Prefix returns the number prefix used for the kind (INV, QUO, REC).
func (k Kind) Prefix() string {
	switch k {
	case KindInvoice:
		return "INV"
	case KindQuote:
		return "QUO"
	case KindReceipt:
		return "REC"
	}
	return ""
}

// Table returns the table holding documents of the kind.
func (k Kind) Table() string {
	return string(k) + "s"
}

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k.Prefix() != ""
}

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusCancelled Status = "cancelled"
	StatusInvoiced  Status = "invoiced"
)

// ContextType tags whether a document is attached to a project.
type ContextType string

const (
	ContextNone    ContextType = "none"
	ContextProject ContextType = "project"
)

// Capabilities describes what a document kind carries and where its lifecycle ends.
type Capabilities struct {
	LineItems     bool
	MilestoneLink bool
	Terminal      []Status
}

// IsTerminal reports whether s ends the lifecycle for edits.
func (c Capabilities) IsTerminal(s Status) bool {
	for _, t := range c.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// Capabilities returns the capability set of the kind.
func (k Kind) Capabilities() Capabilities {
	switch k {
	case KindInvoice:
		return Capabilities{LineItems: true, MilestoneLink: true, Terminal: []Status{StatusCancelled}}
	case KindQuote:
		return Capabilities{LineItems: true, MilestoneLink: true, Terminal: []Status{StatusInvoiced, StatusCancelled}}
	case KindReceipt:
		return Capabilities{MilestoneLink: true, Terminal: []Status{StatusCancelled}}
	}
	return Capabilities{}
}

// Party holds the contact fields a document is addressed to.
type Party struct {
	ClientName  string `gorm:"size:255" json:"client_name"`
	CompanyName string `gorm:"size:255" json:"company_name,omitempty"`
	Email       string `gorm:"size:255" json:"email,omitempty"`
	Telephone1  string `gorm:"size:50;index" json:"telephone1,omitempty"`
	Telephone2  string `gorm:"size:50" json:"telephone2,omitempty"`
	Address     string `gorm:"type:text" json:"address,omitempty"`
	ClientRegNo string `gorm:"size:100" json:"client_reg_no,omitempty"`
	ClientTaxID string `gorm:"size:100" json:"client_tax_id,omitempty"`
}

// HasIdentity reports whether the party can be matched to a customer.
func (p Party) HasIdentity() bool {
	return p.Telephone1 != "" || p.Email != ""
}

// Links is the customer/project/milestone association of a document.
type Links struct {
	CustomerID  *uint       `gorm:"index" json:"customer_id,omitempty"`
	ContextType ContextType `gorm:"size:20;not null" json:"context_type"`
	ProjectID   *uint       `gorm:"index" json:"project_id,omitempty"`
	MilestoneID *uint       `gorm:"index" json:"milestone_id,omitempty"`
}

// Lifecycle carries status, issuance and cancellation stamps, the frozen
// customer snapshot and the rendered artifact reference.
type Lifecycle struct {
	Status       Status     `gorm:"size:20;not null;index" json:"status"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	IssuedBy     *uint      `json:"issued_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  *uint      `json:"cancelled_by,omitempty"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`

	CustomerSnapshot *datatypes.JSONType[CustomerSnapshot] `json:"customer_snapshot,omitempty"`

	PDFURL    string `gorm:"column:pdf_url;size:500" json:"pdf_url,omitempty"`
	PDFLocked bool   `gorm:"column:pdf_locked;not null" json:"pdf_locked"`
}

// IsDraft returns true while the document is still editable.
func (l *Lifecycle) IsDraft() bool {
	return l.Status == StatusDraft
}

// Snapshot returns the frozen customer data, or nil before issuance.
func (l *Lifecycle) Snapshot() *CustomerSnapshot {
	if l.CustomerSnapshot == nil {
		return nil
	}
	s := l.CustomerSnapshot.Data()
	return &s
}

// Document is implemented by *Invoice, *Quote and *Receipt.
type Document interface {
	Kind() Kind
	DocumentID() uint
	DocumentNumber() string
	Owner() uint
	Contact() *Party
	Context() *Links
	State() *Lifecycle
	// Amount is the document total (receipts: the received amount).
	Amount() decimal.Decimal
}
