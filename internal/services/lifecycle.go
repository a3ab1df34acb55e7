package services

import (
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/models"
	"gorm.io/gorm"
)

// transitions lists the legal status moves per document kind.
var transitions = map[models.Kind]map[models.Status][]models.Status{
	models.KindInvoice: {
		models.StatusDraft:  {models.StatusIssued},
		models.StatusIssued: {models.StatusCancelled},
	},
	models.KindQuote: {
		models.StatusDraft:  {models.StatusIssued, models.StatusInvoiced},
		models.StatusIssued: {models.StatusInvoiced, models.StatusCancelled},
	},
	models.KindReceipt: {
		models.StatusDraft:  {models.StatusIssued},
		models.StatusIssued: {models.StatusCancelled},
	},
}

// CanTransition reports whether a document of kind may move from one status to another.
func CanTransition(kind models.Kind, from, to models.Status) bool {
	for _, s := range transitions[kind][from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(doc models.Document, to models.Status) error {
	from := doc.State().Status
	if CanTransition(doc.Kind(), from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s %s is %s, cannot become %s",
		ErrInvalidTransition, doc.Kind(), doc.DocumentNumber(), from, to)
}

func checkEditable(doc models.Document) error {
	if doc.State().IsDraft() {
		return nil
	}
	return fmt.Errorf("%w: %s %s is %s", ErrImmutable, doc.Kind(), doc.DocumentNumber(), doc.State().Status)
}

// advance moves doc to status to, writing set alongside the status.
// The update is conditional on the status read earlier; a concurrent
// transition leaves no row to update and yields ErrInvalidTransition.
func advance(tx *gorm.DB, doc models.Document, to models.Status, now time.Time, set map[string]interface{}) error {
	if err := checkTransition(doc, to); err != nil {
		return err
	}
	from := doc.State().Status
	if set == nil {
		set = map[string]interface{}{}
	}
	set["status"] = to
	set["updated_at"] = now

	res := tx.Table(doc.Kind().Table()).
		Where("id = ? AND status = ?", doc.DocumentID(), from).
		Updates(set)
	if res.Error != nil {
		return fmt.Errorf("%s %s: set status %s: %w", doc.Kind(), doc.DocumentNumber(), to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s changed concurrently, no longer %s",
			ErrInvalidTransition, doc.Kind(), doc.DocumentNumber(), from)
	}
	doc.State().Status = to
	return nil
}
