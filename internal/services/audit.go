package services

import (
	"context"
	"time"

	"github.com/diewo77/go-billing/internal/models"
	"gorm.io/gorm"
)

// AuditEvent describes one committed state change.
type AuditEvent struct {
	Action       models.AuditAction
	Actor        uint
	EntityType   string
	EntityID     uint
	EntityNumber string
	Description  string
	At           time.Time
}

// Recorder receives audit events after the originating transaction commits.
// A returned error is logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// RecorderFunc is an adapter to allow the use of a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, ev AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, ev AuditEvent) error {
	return f(ctx, ev)
}

// GormRecorder appends events to the audit_logs table.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// Record implements Recorder.
func (r *GormRecorder) Record(ctx context.Context, ev AuditEvent) error {
	row := models.AuditLog{
		UserID:       ev.Actor,
		Action:       ev.Action,
		EntityType:   ev.EntityType,
		EntityID:     ev.EntityID,
		EntityNumber: ev.EntityNumber,
		Description:  ev.Description,
		CreatedAt:    ev.At,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// record forwards ev to the configured recorder. Failures never reach the caller.
func (e *Engine) record(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	if err := e.audit.Record(ctx, ev); err != nil {
		e.log.Warn().Err(err).
			Str("action", string(ev.Action)).
			Str("entity_type", ev.EntityType).
			Uint("entity_id", ev.EntityID).
			Msg("failed to record audit event")
	}
}

// documentEvent builds the audit event for an action on doc.
func documentEvent(action models.AuditAction, actor uint, doc models.Document, description string) AuditEvent {
	return AuditEvent{
		Action:       action,
		Actor:        actor,
		EntityType:   string(doc.Kind()),
		EntityID:     doc.DocumentID(),
		EntityNumber: doc.DocumentNumber(),
		Description:  description,
	}
}
