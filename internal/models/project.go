package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus is the state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectClosed    ProjectStatus = "closed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Project groups billing documents for one customer engagement.
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectCode string `gorm:"size:32;uniqueIndex;not null" json:"project_code"`
	UserID      uint   `gorm:"index" json:"user_id"`

	CustomerID uint      `gorm:"index;not null" json:"customer_id"`
	Customer   *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`

	Title       string          `gorm:"size:255;not null" json:"title"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Status      ProjectStatus   `gorm:"size:20;not null" json:"status"`
	TotalBudget decimal.Decimal `gorm:"type:numeric;not null" json:"total_budget"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`

	Milestones []Milestone `gorm:"foreignKey:ProjectID" json:"milestones,omitempty"`
}

// MilestoneType classifies a payment milestone.
type MilestoneType string

const (
	MilestoneAdvance  MilestoneType = "advance"
	MilestoneProgress MilestoneType = "progress"
	MilestoneFinal    MilestoneType = "final"
)

// Valid reports whether t is a known milestone type.
func (t MilestoneType) Valid() bool {
	return t == MilestoneAdvance || t == MilestoneProgress || t == MilestoneFinal
}

// MilestoneStatus is derived from the issued receipts on the milestone.
type MilestoneStatus string

const (
	MilestonePlanned       MilestoneStatus = "planned"
	MilestonePartiallyPaid MilestoneStatus = "partially_paid"
	MilestonePaid          MilestoneStatus = "paid"
)

// Milestone is an expected payment within a project.
type Milestone struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID uint     `gorm:"index;not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`

	MilestoneType  MilestoneType   `gorm:"size:20;not null" json:"milestone_type"`
	MilestoneNo    int             `gorm:"not null" json:"milestone_no"`
	Label          string          `gorm:"size:255" json:"label"`
	ExpectedAmount decimal.Decimal `gorm:"type:numeric;not null" json:"expected_amount"`
	DueDate        *time.Time      `json:"due_date,omitempty"`

	Status   MilestoneStatus `gorm:"size:20;not null" json:"status"`
	PaidDate *time.Time      `json:"paid_date,omitempty"`
}
