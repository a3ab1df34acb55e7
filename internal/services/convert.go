package services

import (
	"context"
	"fmt"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/totals"
	"gorm.io/gorm"
)

// ConvertQuoteToInvoice creates a draft invoice from a draft or issued quote
// and marks the quote invoiced. A quote converts at most once.
func (e *Engine) ConvertQuoteToInvoice(ctx context.Context, quoteID uint) (*models.Invoice, error) {
	actor := auth.Actor(ctx)
	var (
		quote *models.Quote
		inv   *models.Invoice
	)
	err := e.allocating(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, models.KindQuote, quoteID, true)
		if err != nil {
			return err
		}
		q := d.(*models.Quote)
		if q.IsConverted() {
			return fmt.Errorf("%w: quote %s already converted", ErrInvalidTransition, q.Number)
		}
		if err := checkTransition(q, models.StatusInvoiced); err != nil {
			return err
		}
		links, err := ValidateContext(tx, ContextRequest{
			CustomerID: q.CustomerID, ProjectID: q.ProjectID,
			MilestoneID: q.MilestoneID, ContextType: q.ContextType,
		})
		if err != nil {
			return err
		}

		items := make([]models.LineItem, len(q.LineItems))
		for i, it := range q.LineItems {
			items[i] = models.LineItem{
				Description:     it.Description,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				DiscountPercent: it.DiscountPercent,
				Total:           it.Total,
				Position:        it.Position,
			}
		}
		res, err := totals.Document(q.Subtotal, q.DiscountPercent, q.TaxPercent)
		if err != nil {
			return invalidField("discount_percent", err.Error())
		}
		qid := q.ID
		inv = &models.Invoice{
			UserID:          actor,
			Party:           q.Party,
			Links:           links,
			Lifecycle:       models.Lifecycle{Status: models.StatusDraft, CustomerSnapshot: q.CustomerSnapshot},
			Subtotal:        q.Subtotal,
			DiscountPercent: q.DiscountPercent,
			TaxPercent:      q.TaxPercent,
			Total:           res.Total,
			DueDate:         q.ValidUntil,
			Notes:           q.Notes,
			SourceQuoteID:   &qid,
			LineItems:       items,
		}
		if err := e.insert(tx, inv); err != nil {
			return err
		}

		if err := advance(tx, q, models.StatusInvoiced, e.now(), map[string]interface{}{
			"converted_to_invoice_id": inv.ID,
		}); err != nil {
			return err
		}
		if q.CustomerID == nil && q.Party.HasIdentity() {
			if _, err := FillCustomer(tx, q.Party, actor); err != nil {
				return err
			}
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, documentEvent(models.ActionConvert, actor, quote,
		fmt.Sprintf("Converted quote %s to invoice %s", quote.Number, inv.Number)))
	e.record(ctx, documentEvent(models.ActionCreate, actor, inv,
		fmt.Sprintf("Created invoice %s from quote %s", inv.Number, quote.Number)))
	return inv, nil
}
