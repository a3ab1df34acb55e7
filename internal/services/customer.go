package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/validation"
	"gorm.io/gorm"
)

// findCustomer looks a customer up by column value. It returns nil when absent.
func findCustomer(tx *gorm.DB, column, value string) (*models.Customer, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var c models.Customer
	res := tx.Where(column+" = ?", value).Order("id").Limit(1).Find(&c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

// emailTaken reports whether a customer other than exceptID uses email.
func emailTaken(tx *gorm.DB, email string, exceptID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.Customer{}).
		Where("email = ? AND id <> ?", email, exceptID).
		Count(&n).Error
	return n > 0, err
}

// Synchronize matches p to a customer by telephone1, then by email, and
// brings the customer in line with p. Non-blank differing fields overwrite the
// customer's; an email already used by another customer is left out.
// Without a match a potential customer is created.
func Synchronize(tx *gorm.DB, p models.Party, actor uint) (*models.Customer, error) {
	return syncCustomer(tx, p, actor, true)
}

// FillCustomer matches p like Synchronize but only fills the customer's blank
// fields. Used when a quote becomes an invoice.
func FillCustomer(tx *gorm.DB, p models.Party, actor uint) (*models.Customer, error) {
	return syncCustomer(tx, p, actor, false)
}

func syncCustomer(tx *gorm.DB, p models.Party, actor uint, replace bool) (*models.Customer, error) {
	if !p.HasIdentity() {
		return nil, invalidField("telephone1", "required")
	}
	c, err := findCustomer(tx, "telephone1", p.Telephone1)
	if err != nil {
		return nil, err
	}
	if c == nil {
		if c, err = findCustomer(tx, "email", p.Email); err != nil {
			return nil, err
		}
	}

	if c == nil {
		email := p.Email
		if email != "" {
			taken, err := emailTaken(tx, email, 0)
			if err != nil {
				return nil, err
			}
			if taken {
				email = ""
			}
		}
		c = &models.Customer{
			UserID:      actor,
			Name:        p.ClientName,
			CompanyName: p.CompanyName,
			Email:       email,
			Telephone1:  p.Telephone1,
			Telephone2:  p.Telephone2,
			Address:     p.Address,
			ClientRegNo: p.ClientRegNo,
			ClientTaxID: p.ClientTaxID,
			Status:      models.CustomerPotential,
			IsActive:    true,
		}
		if err := tx.Create(c).Error; err != nil {
			return nil, fmt.Errorf("create customer: %w", err)
		}
		return c, nil
	}

	changes := map[string]interface{}{}
	overwrite := func(column, have, want string) {
		if want != "" && want != have && (replace || have == "") {
			changes[column] = want
		}
	}
	overwrite("name", c.Name, p.ClientName)
	overwrite("company_name", c.CompanyName, p.CompanyName)
	overwrite("telephone2", c.Telephone2, p.Telephone2)
	overwrite("address", c.Address, p.Address)
	overwrite("client_reg_no", c.ClientRegNo, p.ClientRegNo)
	overwrite("client_tax_id", c.ClientTaxID, p.ClientTaxID)
	// Matched by email: the phone is only filled in, never replaced.
	if c.Telephone1 == "" && p.Telephone1 != "" {
		changes["telephone1"] = p.Telephone1
	}
	if p.Email != "" && p.Email != c.Email && (replace || c.Email == "") {
		taken, err := emailTaken(tx, p.Email, c.ID)
		if err != nil {
			return nil, err
		}
		if !taken {
			changes["email"] = p.Email
		}
	}
	if len(changes) == 0 {
		return c, nil
	}
	if err := tx.Model(c).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update customer %d: %w", c.ID, err)
	}
	return c, tx.First(c, c.ID).Error
}

// TakeSnapshot returns the customer data to freeze on doc. With a linked
// customer its current record is copied; otherwise the document's own contact
// fields are. The returned customer is nil in the second case.
func TakeSnapshot(tx *gorm.DB, doc models.Document, at time.Time) (models.CustomerSnapshot, *models.Customer, error) {
	links := doc.Context()
	if links.CustomerID == nil {
		return models.SnapshotFromParty(*doc.Contact(), at), nil, nil
	}
	var c models.Customer
	if err := tx.First(&c, *links.CustomerID).Error; err != nil {
		return models.CustomerSnapshot{}, nil, notFound(err, "customer", *links.CustomerID)
	}
	return models.SnapshotFromCustomer(&c, at), &c, nil
}

// promote turns a potential customer into an active one.
func promote(tx *gorm.DB, c *models.Customer) error {
	if c == nil || c.Status != models.CustomerPotential {
		return nil
	}
	err := tx.Model(&models.Customer{}).
		Where("id = ? AND status = ?", c.ID, models.CustomerPotential).
		Update("status", models.CustomerActive).Error
	if err != nil {
		return fmt.Errorf("promote customer %d: %w", c.ID, err)
	}
	c.Status = models.CustomerActive
	return nil
}

// fillFromCustomer copies customer fields into blank contact fields of p.
func fillFromCustomer(p *models.Party, c *models.Customer) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&p.ClientName, c.Name)
	fill(&p.CompanyName, c.CompanyName)
	fill(&p.Email, c.Email)
	fill(&p.Telephone1, c.Telephone1)
	fill(&p.Telephone2, c.Telephone2)
	fill(&p.Address, c.Address)
	fill(&p.ClientRegNo, c.ClientRegNo)
	fill(&p.ClientTaxID, c.ClientTaxID)
}

// CustomerInput holds the fields of a new customer.
type CustomerInput struct {
	Name        string
	CompanyName string
	Email       string
	Telephone1  string
	Telephone2  string
	Address     string
	ClientRegNo string
	ClientTaxID string
	Notes       string
}

// CreateCustomer registers a potential customer. A telephone1 already in use is a conflict.
func (e *Engine) CreateCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	v := validation.Violations{}
	validation.RequiredOneOf("name", v, in.Name, in.CompanyName)
	validation.Required("telephone1", in.Telephone1, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	actor := auth.Actor(ctx)
	c := &models.Customer{
		UserID:      actor,
		Name:        in.Name,
		CompanyName: in.CompanyName,
		Email:       in.Email,
		Telephone1:  in.Telephone1,
		Telephone2:  in.Telephone2,
		Address:     in.Address,
		ClientRegNo: in.ClientRegNo,
		ClientTaxID: in.ClientTaxID,
		Notes:       in.Notes,
		Status:      models.CustomerPotential,
		IsActive:    true,
	}
	err := e.tx(ctx, func(tx *gorm.DB) error {
		existing, err := findCustomer(tx, "telephone1", in.Telephone1)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: telephone1 %s already belongs to customer %d", ErrConflict, in.Telephone1, existing.ID)
		}
		return tx.Create(c).Error
	})
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: telephone1 %s: %v", ErrConflict, in.Telephone1, err)
	}
	if err != nil {
		return nil, err
	}
	e.record(ctx, AuditEvent{
		Action:      models.ActionCreate,
		Actor:       actor,
		EntityType:  "customer",
		EntityID:    c.ID,
		Description: fmt.Sprintf("Created customer %s", c.DisplayName()),
	})
	return c, nil
}

// SetCustomerActive enables or disables a customer for new documents.
// Deactivation marks the customer inactive; reactivating an inactive
// customer makes it active again.
func (e *Engine) SetCustomerActive(ctx context.Context, id uint, active bool) (*models.Customer, error) {
	var c models.Customer
	err := e.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			return notFound(err, "customer", id)
		}
		changes := map[string]interface{}{"is_active": active}
		switch {
		case !active:
			changes["status"] = models.CustomerInactive
		case c.Status == models.CustomerInactive:
			changes["status"] = models.CustomerActive
		}
		if err := tx.Model(&c).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&c, id).Error
	})
	if err != nil {
		return nil, err
	}
	verb := "Deactivated"
	if active {
		verb = "Activated"
	}
	e.record(ctx, AuditEvent{
		Action:      models.ActionUpdate,
		Actor:       auth.Actor(ctx),
		EntityType:  "customer",
		EntityID:    c.ID,
		Description: fmt.Sprintf("%s customer %s", verb, c.DisplayName()),
	})
	return &c, nil
}

// FindCustomerByPhone returns the customer whose telephone1 is phone.
func (e *Engine) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	c, err := findCustomer(e.db.WithContext(ctx), "telephone1", phone)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: customer with telephone1 %q", ErrNotFound, phone)
	}
	return c, nil
}
