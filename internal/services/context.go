package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-billing/internal/models"
	"gorm.io/gorm"
)

// ContextRequest is the customer/project/milestone association asked for by a caller.
type ContextRequest struct {
	CustomerID  *uint              `json:"customer_id"`
	ProjectID   *uint              `json:"project_id"`
	MilestoneID *uint              `json:"milestone_id"`
	ContextType models.ContextType `json:"context_type"`
}

// ValidateContext checks that the referenced customer, project and milestone
// exist and agree with each other, and returns the normalized links.
//
// A milestone without a project implies the milestone's project. The context
// type is project exactly when a project ends up attached, whatever was requested.
func ValidateContext(tx *gorm.DB, req ContextRequest) (models.Links, error) {
	out := models.Links{
		CustomerID:  req.CustomerID,
		ProjectID:   req.ProjectID,
		MilestoneID: req.MilestoneID,
		ContextType: models.ContextNone,
	}

	if req.CustomerID != nil {
		var c models.Customer
		if err := first(tx, &c, *req.CustomerID, "customer"); err != nil {
			return out, err
		}
		if !c.CanBeReferenced() {
			return out, fmt.Errorf("%w: customer %d is inactive", ErrInvalidContext, c.ID)
		}
	}

	if req.MilestoneID != nil {
		var m models.Milestone
		if err := first(tx, &m, *req.MilestoneID, "milestone"); err != nil {
			return out, err
		}
		if out.ProjectID == nil {
			pid := m.ProjectID
			out.ProjectID = &pid
		} else if *out.ProjectID != m.ProjectID {
			return out, fmt.Errorf("%w: milestone %d belongs to project %d, not %d",
				ErrInvalidContext, m.ID, m.ProjectID, *out.ProjectID)
		}
	}

	if out.ProjectID != nil {
		var p models.Project
		if err := first(tx, &p, *out.ProjectID, "project"); err != nil {
			return out, err
		}
		if req.CustomerID != nil && p.CustomerID != *req.CustomerID {
			return out, fmt.Errorf("%w: project %s belongs to customer %d, not %d",
				ErrInvalidContext, p.ProjectCode, p.CustomerID, *req.CustomerID)
		}
		out.ContextType = models.ContextProject
	}
	return out, nil
}

// ValidateContext runs ValidateContext in its own read transaction.
func (e *Engine) ValidateContext(ctx context.Context, req ContextRequest) (models.Links, error) {
	var links models.Links
	err := e.tx(ctx, func(tx *gorm.DB) error {
		var err error
		links, err = ValidateContext(tx, req)
		return err
	})
	return links, err
}

// first loads a context entity. A missing row is both an invalid context and not found.
func first(tx *gorm.DB, dest interface{}, id uint, entity string) error {
	err := tx.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w: %s %d", ErrInvalidContext, ErrNotFound, entity, id)
	}
	return err
}
