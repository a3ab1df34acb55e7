package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-billing/internal/validation"
	"gorm.io/gorm"
)

// Sentinel errors returned by the billing engine. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("billing: not found")
	ErrInvalidContext    = errors.New("billing: invalid document context")
	ErrInvalidTransition = errors.New("billing: invalid transition")
	ErrValidation        = errors.New("billing: validation failed")
	ErrConflict          = errors.New("billing: conflict")

	// ErrImmutable is returned when editing or deleting a non-draft document.
	ErrImmutable = fmt.Errorf("%w: document is no longer a draft", ErrInvalidTransition)

	ErrNoRenderer = errors.New("billing: no pdf renderer configured")
	ErrNoMailer   = errors.New("billing: no mailer configured")
)

// ValidationError lists the offending fields of an input.
type ValidationError struct {
	Fields validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Fields)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Fields: v}
}

func invalidField(field, code string) error {
	return &ValidationError{Fields: validation.Violations{field: code}}
}

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsInvalidContext(err error) bool    { return errors.Is(err, ErrInvalidContext) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }

// notFound maps gorm.ErrRecordNotFound onto ErrNotFound.
func notFound(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
	}
	return err
}

// isUniqueViolation reports whether err comes from a unique index.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}
