package models

import "time"

// CustomerStatus tracks where a customer is in its relationship lifecycle.
type CustomerStatus string

const (
	CustomerPotential CustomerStatus = "potential"
	CustomerActive    CustomerStatus = "active"
	CustomerInactive  CustomerStatus = "inactive"
)

// Customer represents a billed party.
// Telephone1 is the primary identity; Email is the fallback.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the user who created the customer
	UserID uint `gorm:"index" json:"user_id"`

	Name        string `gorm:"size:255" json:"name"`
	CompanyName string `gorm:"size:255" json:"company_name,omitempty"`
	Email       string `gorm:"size:255;index" json:"email,omitempty"`
	Telephone1  string `gorm:"size:50;index:idx_customers_telephone1,unique,where:telephone1 <> ''" json:"telephone1,omitempty"`
	Telephone2  string `gorm:"size:50" json:"telephone2,omitempty"`
	Address     string `gorm:"type:text" json:"address,omitempty"`

	// Tax identification
	ClientRegNo string `gorm:"size:100" json:"client_reg_no,omitempty"`
	ClientTaxID string `gorm:"size:100" json:"client_tax_id,omitempty"`

	Status   CustomerStatus `gorm:"size:20;not null" json:"status"`
	IsActive bool           `gorm:"not null" json:"is_active"`
	Notes    string         `gorm:"type:text" json:"notes,omitempty"`
}

// CanBeReferenced reports whether new documents may point at the customer.
func (c *Customer) CanBeReferenced() bool {
	return c.IsActive && c.Status != CustomerInactive
}

// DisplayName returns the person name, or the company name when blank.
func (c *Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.CompanyName
}
