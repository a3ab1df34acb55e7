package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MilestoneState is the payment state derived for a milestone.
type MilestoneState struct {
	Status   models.MilestoneStatus
	PaidDate *time.Time
	Received decimal.Decimal
}

// Aggregate derives the milestone state from the received sum.
// paidDate is the currently stored date; paymentDate, when given, is only
// used if no date was stored yet. Equal or greater than expected counts as paid.
func Aggregate(received, expected decimal.Decimal, paidDate, paymentDate *time.Time) MilestoneState {
	st := MilestoneState{Received: received, PaidDate: paidDate}
	switch {
	case !received.IsPositive():
		st.Status = models.MilestonePlanned
		st.PaidDate = nil
		return st
	case received.LessThan(expected):
		st.Status = models.MilestonePartiallyPaid
	default:
		st.Status = models.MilestonePaid
	}
	if st.PaidDate == nil && paymentDate != nil {
		d := *paymentDate
		st.PaidDate = &d
	}
	return st
}

// recomputeMilestone sums the issued receipts of a milestone and stores the
// derived status and paid date.
func recomputeMilestone(tx *gorm.DB, id uint, paymentDate *time.Time) (*models.Milestone, error) {
	var m models.Milestone
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error; err != nil {
		return nil, notFound(err, "milestone", id)
	}
	var amounts []decimal.Decimal
	err := tx.Model(&models.Receipt{}).
		Where("milestone_id = ? AND status = ?", id, models.StatusIssued).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("sum receipts of milestone %d: %w", id, err)
	}
	received := decimal.Zero
	for _, a := range amounts {
		received = received.Add(a)
	}

	st := Aggregate(received, m.ExpectedAmount, m.PaidDate, paymentDate)
	err = tx.Model(&m).Updates(map[string]interface{}{
		"status":    st.Status,
		"paid_date": st.PaidDate,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update milestone %d: %w", id, err)
	}
	m.Status, m.PaidDate = st.Status, st.PaidDate
	return &m, nil
}

// RecomputeMilestone recomputes a milestone's status from its issued receipts.
// paymentDate may be nil for a plain recomputation.
func (e *Engine) RecomputeMilestone(ctx context.Context, id uint, paymentDate *time.Time) (*models.Milestone, error) {
	var m *models.Milestone
	err := e.tx(ctx, func(tx *gorm.DB) error {
		var err error
		m, err = recomputeMilestone(tx, id, paymentDate)
		return err
	})
	return m, err
}
