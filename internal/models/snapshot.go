package models

import "time"

// SnapshotVersion is the current layout of CustomerSnapshot.
const SnapshotVersion = 1

// CustomerSnapshot is the customer data frozen on a document at issuance.
type CustomerSnapshot struct {
	Version     int       `json:"version"`
	CustomerID  *uint     `json:"customer_id,omitempty"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Telephone1  string    `json:"telephone1,omitempty"`
	Telephone2  string    `json:"telephone2,omitempty"`
	Address     string    `json:"address,omitempty"`
	ClientRegNo string    `json:"client_reg_no,omitempty"`
	ClientTaxID string    `json:"client_tax_id,omitempty"`
	TakenAt     time.Time `json:"taken_at"`
}

// SnapshotFromCustomer copies the customer's current contact and tax fields.
func SnapshotFromCustomer(c *Customer, at time.Time) CustomerSnapshot {
	id := c.ID
	return CustomerSnapshot{
		Version:     SnapshotVersion,
		CustomerID:  &id,
		Name:        c.Name,
		CompanyName: c.CompanyName,
		Email:       c.Email,
		Telephone1:  c.Telephone1,
		Telephone2:  c.Telephone2,
		Address:     c.Address,
		ClientRegNo: c.ClientRegNo,
		ClientTaxID: c.ClientTaxID,
		TakenAt:     at,
	}
}

// SnapshotFromParty copies a document's own contact fields verbatim.
func SnapshotFromParty(p Party, at time.Time) CustomerSnapshot {
	return CustomerSnapshot{
		Version:     SnapshotVersion,
		Name:        p.ClientName,
		CompanyName: p.CompanyName,
		Email:       p.Email,
		Telephone1:  p.Telephone1,
		Telephone2:  p.Telephone2,
		Address:     p.Address,
		ClientRegNo: p.ClientRegNo,
		ClientTaxID: p.ClientTaxID,
		TakenAt:     at,
	}
}
