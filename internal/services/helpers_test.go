package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// memRecorder keeps audit events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *memRecorder) Record(_ context.Context, ev AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

func (r *memRecorder) last() AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return AuditEvent{}
	}
	return r.events[len(r.events)-1]
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithRecorder(rec),
	}
	return NewEngine(setupTestDB(t), append(base, opts...)...), rec
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func asUser(id uint) context.Context {
	return auth.WithUserID(context.Background(), id)
}

func ptr[T any](v T) *T { return &v }

func seedCustomer(t *testing.T, db *gorm.DB, name, phone string, status models.CustomerStatus) *models.Customer {
	t.Helper()
	c := &models.Customer{
		Name:       name,
		Telephone1: phone,
		Email:      strings.ToLower(name) + "@example.com",
		Status:     status,
		IsActive:   status != models.CustomerInactive,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return c
}

func seedProject(t *testing.T, db *gorm.DB, customerID uint, code string) *models.Project {
	t.Helper()
	p := &models.Project{
		ProjectCode: code,
		CustomerID:  customerID,
		Title:       "Project " + code,
		Status:      models.ProjectActive,
		TotalBudget: dec("1000"),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func seedMilestone(t *testing.T, db *gorm.DB, projectID uint, expected string) *models.Milestone {
	t.Helper()
	m := &models.Milestone{
		ProjectID:      projectID,
		MilestoneType:  models.MilestoneAdvance,
		MilestoneNo:    1,
		Label:          "Advance",
		ExpectedAmount: dec(expected),
		Status:         models.MilestonePlanned,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed milestone: %v", err)
	}
	return m
}

// scenarioInvoice has two lines: 2 x 50 and 1 x 20 at 10% off, with 10% tax.
func scenarioInvoice() DocumentInput {
	return DocumentInput{
		Party: models.Party{ClientName: "Ana Client"},
		LineItems: []LineItemInput{
			{Description: "Design", Quantity: dec("2"), UnitPrice: dec("50")},
			{Description: "Hosting", Quantity: dec("1"), UnitPrice: dec("20"), DiscountPercent: dec("10")},
		},
		TaxPercent: dec("10"),
	}
}

// countingRenderer returns deterministic URLs and counts calls.
type countingRenderer struct {
	calls int
	fail  error
}

func (r *countingRenderer) Render(_ context.Context, doc models.Document) (string, error) {
	if r.fail != nil {
		return "", r.fail
	}
	r.calls++
	return fmt.Sprintf("https://files.test/%s-%s-%d.pdf", doc.DocumentNumber(), doc.State().Status, r.calls), nil
}
