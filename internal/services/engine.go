// Package services implements the billing document lifecycle: numbering,
// pricing, context validation, customer synchronization and snapshots,
// status transitions, milestone aggregation and audit notification.
//
// Every operation runs in one database transaction. Audit events are emitted
// after commit and never fail the operation.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/numbering"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSource allocates document numbers inside the inserting transaction.
type NumberSource interface {
	Next(tx *gorm.DB, kind models.Kind, year int) (string, error)
}

// SequenceNumbers allocates numbers from the highest existing number per kind and year.
type SequenceNumbers struct{}

// Next implements NumberSource.
func (SequenceNumbers) Next(tx *gorm.DB, kind models.Kind, year int) (string, error) {
	s := numbering.Series{Prefix: kind.Prefix(), Table: kind.Table(), Column: "number"}
	return s.Next(tx, year)
}

var projectCodes = numbering.Series{Prefix: "PRJ", Table: "projects", Column: "project_code"}

// Engine runs billing document operations against a gorm database.
type Engine struct {
	db       *gorm.DB
	numbers  NumberSource
	renderer Renderer
	mailer   Mailer
	audit    Recorder
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithNumberSource replaces the document number allocator.
func WithNumberSource(ns NumberSource) Option {
	return func(e *Engine) { e.numbers = ns }
}

// WithRenderer sets the PDF renderer used on cancel and on demand.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithMailer sets the mailer used by SendDocument.
func WithMailer(m Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// WithRecorder sets the audit recorder. A nil recorder disables auditing.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.audit = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an engine writing audit events to db's audit_logs table.
func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		numbers:  SequenceNumbers{},
		renderer: LinkRenderer{BaseURL: "/files"},
		audit:    NewGormRecorder(db),
		now:      func() time.Time { return time.Now().UTC() },
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB returns the underlying database handle.
func (e *Engine) DB() *gorm.DB { return e.db }

// tx runs fn in one transaction.
func (e *Engine) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return e.db.WithContext(ctx).Transaction(fn)
}

// allocating runs fn in a transaction and retries it once, in a fresh
// transaction, when it fails on a unique index. A second failure is ErrConflict.
func (e *Engine) allocating(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := e.tx(ctx, fn)
	if !isUniqueViolation(err) {
		return err
	}
	e.log.Warn().Err(err).Msg("number allocation conflict, retrying")
	err = e.tx(ctx, fn)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: number allocation: %v", ErrConflict, err)
	}
	return err
}

// load fetches a document by kind and id, locking the row when lock is set.
func (e *Engine) load(tx *gorm.DB, kind models.Kind, id uint, lock bool) (models.Document, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }

	var (
		doc models.Document
		err error
	)
	switch kind {
	case models.KindInvoice:
		var inv models.Invoice
		err = q.Preload("LineItems", byPosition).First(&inv, id).Error
		doc = &inv
	case models.KindQuote:
		var quo models.Quote
		err = q.Preload("LineItems", byPosition).First(&quo, id).Error
		doc = &quo
	case models.KindReceipt:
		var rec models.Receipt
		err = q.First(&rec, id).Error
		doc = &rec
	default:
		return nil, invalidField("kind", "unknown")
	}
	if err != nil {
		return nil, notFound(err, string(kind), id)
	}
	return doc, nil
}

// lineItems returns the line items of an invoice or quote.
func lineItems(doc models.Document) []models.LineItem {
	switch d := doc.(type) {
	case *models.Invoice:
		return d.LineItems
	case *models.Quote:
		return d.LineItems
	}
	return nil
}
