package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectInput holds the fields of a new project.
type ProjectInput struct {
	CustomerID  uint
	Title       string
	Description string
	TotalBudget decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
}

// CreateProject opens a project for an active customer. Its code is
// allocated like document numbers, with prefix PRJ.
func (e *Engine) CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error) {
	v := validation.Violations{}
	validation.Required("title", in.Title, v)
	validation.NonNegative("total_budget", in.TotalBudget, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	actor := auth.Actor(ctx)
	var p *models.Project
	err := e.allocating(ctx, func(tx *gorm.DB) error {
		var c models.Customer
		if err := tx.First(&c, in.CustomerID).Error; err != nil {
			return notFound(err, "customer", in.CustomerID)
		}
		if !c.CanBeReferenced() {
			return fmt.Errorf("%w: customer %d is inactive", ErrInvalidContext, c.ID)
		}
		code, err := projectCodes.Next(tx, e.now().Year())
		if err != nil {
			return err
		}
		p = &models.Project{
			ProjectCode: code,
			UserID:      actor,
			CustomerID:  c.ID,
			Title:       in.Title,
			Description: in.Description,
			Status:      models.ProjectActive,
			TotalBudget: in.TotalBudget,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, AuditEvent{
		Action:       models.ActionCreate,
		Actor:        actor,
		EntityType:   "project",
		EntityID:     p.ID,
		EntityNumber: p.ProjectCode,
		Description:  fmt.Sprintf("Created project %s", p.ProjectCode),
	})
	return p, nil
}

// MilestoneInput holds the fields of a new milestone.
type MilestoneInput struct {
	Type           models.MilestoneType
	Label          string
	ExpectedAmount decimal.Decimal
	DueDate        *time.Time
}

// AddMilestone appends a planned milestone to a project.
func (e *Engine) AddMilestone(ctx context.Context, projectID uint, in MilestoneInput) (*models.Milestone, error) {
	v := validation.Violations{}
	if !in.Type.Valid() {
		v.Add("milestone_type", "unknown")
	}
	validation.NonNegative("expected_amount", in.ExpectedAmount, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	var m *models.Milestone
	err := e.tx(ctx, func(tx *gorm.DB) error {
		var p models.Project
		if err := tx.First(&p, projectID).Error; err != nil {
			return notFound(err, "project", projectID)
		}
		var last []int
		err := tx.Model(&models.Milestone{}).
			Where("project_id = ?", projectID).
			Order("milestone_no DESC").Limit(1).
			Pluck("milestone_no", &last).Error
		if err != nil {
			return err
		}
		next := 1
		if len(last) > 0 {
			next = last[0] + 1
		}
		m = &models.Milestone{
			ProjectID:      projectID,
			MilestoneType:  in.Type,
			MilestoneNo:    next,
			Label:          in.Label,
			ExpectedAmount: in.ExpectedAmount,
			DueDate:        in.DueDate,
			Status:         models.MilestonePlanned,
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, AuditEvent{
		Action:      models.ActionCreate,
		Actor:       auth.Actor(ctx),
		EntityType:  "milestone",
		EntityID:    m.ID,
		Description: fmt.Sprintf("Added milestone %d to project %d", m.MilestoneNo, projectID),
	})
	return m, nil
}
