package models

import "time"

// AuditAction is the kind of state change recorded in the audit trail.
type AuditAction string

const (
	ActionCreate      AuditAction = "create"
	ActionUpdate      AuditAction = "update"
	ActionDelete      AuditAction = "delete"
	ActionIssue       AuditAction = "issue"
	ActionCancel      AuditAction = "cancel"
	ActionConvert     AuditAction = "convert"
	ActionGeneratePDF AuditAction = "generate_pdf"
	ActionSendEmail   AuditAction = "send_email"
)

// AuditLog is one append-only audit trail row.
type AuditLog struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	UserID       uint        `gorm:"index" json:"user_id"` // actor
	Action       AuditAction `gorm:"size:32;not null;index" json:"action"`
	EntityType   string      `gorm:"size:32;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID     uint        `gorm:"index:idx_audit_entity" json:"entity_id"`
	EntityNumber string      `gorm:"size:32" json:"entity_number,omitempty"`
	Description  string      `gorm:"type:text" json:"description"`
	CreatedAt    time.Time   `json:"created_at"`
}

// EmailLog records a document sent to a recipient.
type EmailLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index" json:"user_id"`
	DocumentKind   Kind      `gorm:"size:20;not null;index:idx_email_document" json:"document_kind"`
	DocumentID     uint      `gorm:"index:idx_email_document" json:"document_id"`
	DocumentNumber string    `gorm:"size:32" json:"document_number"`
	CustomerID     *uint     `gorm:"index" json:"customer_id,omitempty"`
	RecipientEmail string    `gorm:"size:255;not null" json:"recipient_email"`
	Subject        string    `gorm:"size:500" json:"subject"`
	Message        string    `gorm:"type:text" json:"message,omitempty"`
	PDFURL         string    `gorm:"column:pdf_url;size:500" json:"pdf_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// All returns every model managed by the schema, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Customer{}, &Project{}, &Milestone{},
		&Invoice{}, &Quote{}, &Receipt{}, &LineItem{},
		&AuditLog{}, &EmailLog{},
	}
}
