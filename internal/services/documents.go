package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/totals"
	"github.com/diewo77/go-billing/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LineItemInput is one priced line of an invoice or quote.
type LineItemInput struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// DocumentInput is the payload of CreateDocument. Fields that do not apply
// to the kind are ignored.
type DocumentInput struct {
	models.Party
	Context ContextRequest `json:"context"`

	// Invoices and quotes
	LineItems       []LineItemInput `json:"line_items"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DueDate         *time.Time      `json:"due_date"`    // invoice
	ValidUntil      *time.Time      `json:"valid_until"` // quote

	// Receipts
	Amount           decimal.Decimal      `json:"amount"`
	ReceiptDate      *time.Time           `json:"receipt_date"`
	PaymentMethod    models.PaymentMethod `json:"payment_method"`
	PaymentReference string               `json:"payment_reference"`
	InvoiceID        *uint                `json:"invoice_id"`

	Notes string `json:"notes"`
}

// DocumentPatch is the payload of UpdateDocument. Nil fields are left
// unchanged; a non-nil LineItems replaces all line items.
type DocumentPatch struct {
	Party   *models.Party   `json:"party"`
	Context *ContextRequest `json:"context"`

	LineItems       []LineItemInput  `json:"line_items"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	TaxPercent      *decimal.Decimal `json:"tax_percent"`
	DueDate         *time.Time       `json:"due_date"`
	ValidUntil      *time.Time       `json:"valid_until"`

	Amount           *decimal.Decimal      `json:"amount"`
	ReceiptDate      *time.Time            `json:"receipt_date"`
	PaymentMethod    *models.PaymentMethod `json:"payment_method"`
	PaymentReference *string               `json:"payment_reference"`
	InvoiceID        *uint                 `json:"invoice_id"`

	Notes *string `json:"notes"`
}

// priced is the outcome of running the calculators over a document's lines.
type priced struct {
	items  []models.LineItem
	result totals.Result
}

// price runs the line and document calculators. Discounts and tax are percentages.
func price(lines []LineItemInput, discount, tax decimal.Decimal) (priced, error) {
	v := validation.Violations{}
	calc := make([]totals.Line, len(lines))
	for i, l := range lines {
		field := fmt.Sprintf("line_items[%d]", i)
		validation.Required(field+".description", l.Description, v)
		validation.NonNegative(field+".quantity", l.Quantity, v)
		validation.NonNegative(field+".unit_price", l.UnitPrice, v)
		validation.Range(field+".discount_percent", l.DiscountPercent, decimal.Zero, decimal.NewFromInt(100), v)
		calc[i] = totals.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPercent: l.DiscountPercent}
	}
	validation.Range("discount_percent", discount, decimal.Zero, decimal.NewFromInt(100), v)
	validation.NonNegative("tax_percent", tax, v)
	if err := invalid(v); err != nil {
		return priced{}, err
	}

	each, subtotal, err := totals.Lines(calc)
	if err != nil {
		return priced{}, invalidField("line_items", err.Error())
	}
	res, err := totals.Document(subtotal, discount, tax)
	if err != nil {
		return priced{}, invalidField("discount_percent", err.Error())
	}
	items := make([]models.LineItem, len(lines))
	for i, l := range lines {
		items[i] = models.LineItem{
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			Total:           each[i],
			Position:        i,
		}
	}
	return priced{items: items, result: res}, nil
}

// resolveParty validates the context and completes the contact fields from
// the linked customer.
func resolveParty(tx *gorm.DB, p models.Party, req ContextRequest) (models.Party, models.Links, error) {
	links, err := ValidateContext(tx, req)
	if err != nil {
		return p, links, err
	}
	if links.CustomerID != nil {
		var c models.Customer
		if err := tx.First(&c, *links.CustomerID).Error; err != nil {
			return p, links, notFound(err, "customer", *links.CustomerID)
		}
		fillFromCustomer(&p, &c)
	}
	v := validation.Violations{}
	validation.RequiredOneOf("client_name", v, p.ClientName, p.CompanyName)
	return p, links, invalid(v)
}

func checkReceipt(tx *gorm.DB, amount decimal.Decimal, method models.PaymentMethod, invoiceID *uint) error {
	v := validation.Violations{}
	validation.Positive("amount", amount, v)
	if !method.Valid() {
		v.Add("payment_method", "unknown")
	}
	if err := invalid(v); err != nil {
		return err
	}
	if invoiceID != nil {
		var inv models.Invoice
		if err := tx.Select("id").First(&inv, *invoiceID).Error; err != nil {
			return notFound(err, "invoice", *invoiceID)
		}
	}
	return nil
}

// build assembles a new draft document from in without persisting it.
func (e *Engine) build(tx *gorm.DB, kind models.Kind, in DocumentInput, actor uint) (models.Document, error) {
	party, links, err := resolveParty(tx, in.Party, in.Context)
	if err != nil {
		return nil, err
	}
	life := models.Lifecycle{Status: models.StatusDraft}

	switch kind {
	case models.KindInvoice, models.KindQuote:
		pr, err := price(in.LineItems, in.DiscountPercent, in.TaxPercent)
		if err != nil {
			return nil, err
		}
		if kind == models.KindInvoice {
			return &models.Invoice{
				UserID: actor, Party: party, Links: links, Lifecycle: life,
				Subtotal: pr.result.Subtotal, DiscountPercent: in.DiscountPercent,
				TaxPercent: in.TaxPercent, Total: pr.result.Total,
				DueDate: in.DueDate, Notes: in.Notes, LineItems: pr.items,
			}, nil
		}
		return &models.Quote{
			UserID: actor, Party: party, Links: links, Lifecycle: life,
			Subtotal: pr.result.Subtotal, DiscountPercent: in.DiscountPercent,
			TaxPercent: in.TaxPercent, Total: pr.result.Total,
			ValidUntil: in.ValidUntil, Notes: in.Notes, LineItems: pr.items,
		}, nil

	case models.KindReceipt:
		method := in.PaymentMethod
		if method == "" {
			method = models.PaymentCash
		}
		if err := checkReceipt(tx, in.Amount, method, in.InvoiceID); err != nil {
			return nil, err
		}
		date := e.now()
		if in.ReceiptDate != nil {
			date = *in.ReceiptDate
		}
		return &models.Receipt{
			UserID: actor, Party: party, Links: links, Lifecycle: life,
			InvoiceID: in.InvoiceID, ReceiptDate: date, PaymentMethod: method,
			PaymentReference: in.PaymentReference, AmountReceived: in.Amount, Notes: in.Notes,
		}, nil
	}
	return nil, invalidField("kind", "unknown")
}

func setNumber(doc models.Document, number string) {
	switch d := doc.(type) {
	case *models.Invoice:
		d.Number = number
	case *models.Quote:
		d.Number = number
	case *models.Receipt:
		d.Number = number
	}
}

// insert numbers doc and stores it with its line items.
func (e *Engine) insert(tx *gorm.DB, doc models.Document) error {
	number, err := e.numbers.Next(tx, doc.Kind(), e.now().Year())
	if err != nil {
		return err
	}
	setNumber(doc, number)
	if err := tx.Create(doc).Error; err != nil {
		return fmt.Errorf("insert %s %s: %w", doc.Kind(), number, err)
	}
	return nil
}

// CreateDocument creates a draft invoice, quote or receipt.
func (e *Engine) CreateDocument(ctx context.Context, kind models.Kind, in DocumentInput) (models.Document, error) {
	if !kind.Valid() {
		return nil, invalidField("kind", "unknown")
	}
	actor := auth.Actor(ctx)
	var doc models.Document
	err := e.allocating(ctx, func(tx *gorm.DB) error {
		d, err := e.build(tx, kind, in, actor)
		if err != nil {
			return err
		}
		if err := e.insert(tx, d); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, documentEvent(models.ActionCreate, actor, doc,
		fmt.Sprintf("Created %s %s", kind, doc.DocumentNumber())))
	return doc, nil
}

// CreateInvoice creates a draft invoice.
func (e *Engine) CreateInvoice(ctx context.Context, in DocumentInput) (*models.Invoice, error) {
	doc, err := e.CreateDocument(ctx, models.KindInvoice, in)
	if err != nil {
		return nil, err
	}
	return doc.(*models.Invoice), nil
}

// CreateQuote creates a draft quote.
func (e *Engine) CreateQuote(ctx context.Context, in DocumentInput) (*models.Quote, error) {
	doc, err := e.CreateDocument(ctx, models.KindQuote, in)
	if err != nil {
		return nil, err
	}
	return doc.(*models.Quote), nil
}

// CreateReceipt creates a draft receipt.
func (e *Engine) CreateReceipt(ctx context.Context, in DocumentInput) (*models.Receipt, error) {
	doc, err := e.CreateDocument(ctx, models.KindReceipt, in)
	if err != nil {
		return nil, err
	}
	return doc.(*models.Receipt), nil
}

// GetDocument loads a document with its line items.
func (e *Engine) GetDocument(ctx context.Context, kind models.Kind, id uint) (models.Document, error) {
	return e.load(e.db.WithContext(ctx), kind, id, false)
}

// applyPatch changes the draft doc in memory and reports whether line items were replaced.
func (e *Engine) applyPatch(tx *gorm.DB, doc models.Document, p DocumentPatch) (bool, error) {
	party := *doc.Contact()
	if p.Party != nil {
		party = *p.Party
	}
	req := ContextRequest{
		CustomerID:  doc.Context().CustomerID,
		ProjectID:   doc.Context().ProjectID,
		MilestoneID: doc.Context().MilestoneID,
		ContextType: doc.Context().ContextType,
	}
	if p.Context != nil {
		req = *p.Context
	}
	party, links, err := resolveParty(tx, party, req)
	if err != nil {
		return false, err
	}
	*doc.Contact() = party
	*doc.Context() = links
	doc.State().PDFURL = ""

	switch d := doc.(type) {
	case *models.Invoice:
		if p.DueDate != nil {
			d.DueDate = p.DueDate
		}
		if p.Notes != nil {
			d.Notes = *p.Notes
		}
		return repriceLines(&d.LineItems, &d.Subtotal, &d.DiscountPercent, &d.TaxPercent, &d.Total, p)
	case *models.Quote:
		if p.ValidUntil != nil {
			d.ValidUntil = p.ValidUntil
		}
		if p.Notes != nil {
			d.Notes = *p.Notes
		}
		return repriceLines(&d.LineItems, &d.Subtotal, &d.DiscountPercent, &d.TaxPercent, &d.Total, p)
	case *models.Receipt:
		if p.Amount != nil {
			d.AmountReceived = *p.Amount
		}
		if p.PaymentMethod != nil {
			d.PaymentMethod = *p.PaymentMethod
		}
		if p.PaymentReference != nil {
			d.PaymentReference = *p.PaymentReference
		}
		if p.ReceiptDate != nil {
			d.ReceiptDate = *p.ReceiptDate
		}
		if p.InvoiceID != nil {
			d.InvoiceID = p.InvoiceID
		}
		if p.Notes != nil {
			d.Notes = *p.Notes
		}
		return false, checkReceipt(tx, d.AmountReceived, d.PaymentMethod, d.InvoiceID)
	}
	return false, nil
}

// repriceLines recomputes amounts after a patch touching lines, discount or tax.
func repriceLines(items *[]models.LineItem, subtotal, discount, tax, total *decimal.Decimal, p DocumentPatch) (bool, error) {
	if p.LineItems == nil && p.DiscountPercent == nil && p.TaxPercent == nil {
		return false, nil
	}
	lines := p.LineItems
	if lines == nil {
		for _, it := range *items {
			lines = append(lines, LineItemInput{
				Description: it.Description, Quantity: it.Quantity,
				UnitPrice: it.UnitPrice, DiscountPercent: it.DiscountPercent,
			})
		}
	}
	d, t := *discount, *tax
	if p.DiscountPercent != nil {
		d = *p.DiscountPercent
	}
	if p.TaxPercent != nil {
		t = *p.TaxPercent
	}
	pr, err := price(lines, d, t)
	if err != nil {
		return false, err
	}
	*discount, *tax = d, t
	*subtotal, *total = pr.result.Subtotal, pr.result.Total
	if p.LineItems == nil {
		for i := range *items {
			(*items)[i].Total = pr.items[i].Total
		}
		return false, nil
	}
	*items = pr.items
	return true, nil
}

// UpdateDocument edits a draft document. Any change clears the stored artifact.
func (e *Engine) UpdateDocument(ctx context.Context, kind models.Kind, id uint, p DocumentPatch) (models.Document, error) {
	actor := auth.Actor(ctx)
	var doc models.Document
	err := e.tx(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		if err := checkEditable(d); err != nil {
			return err
		}
		replaced, err := e.applyPatch(tx, d, p)
		if err != nil {
			return err
		}
		res := tx.Model(d).
			Where("status = ?", models.StatusDraft).
			Select("*").Omit(clause.Associations, "created_at").
			Updates(d)
		if res.Error != nil {
			return fmt.Errorf("update %s %s: %w", kind, d.DocumentNumber(), res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %s changed concurrently", ErrImmutable, kind, d.DocumentNumber())
		}
		if err := saveLineItems(tx, d, replaced); err != nil {
			return err
		}
		doc, err = e.load(tx, kind, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, documentEvent(models.ActionUpdate, actor, doc,
		fmt.Sprintf("Updated %s %s", kind, doc.DocumentNumber())))
	return doc, nil
}

// saveLineItems persists line items after an update: replaced sets are
// rewritten, otherwise recomputed totals are stored in place.
func saveLineItems(tx *gorm.DB, doc models.Document, replaced bool) error {
	if !doc.Kind().Capabilities().LineItems {
		return nil
	}
	items := lineItems(doc)
	if !replaced {
		for _, it := range items {
			if err := tx.Model(&models.LineItem{}).Where("id = ?", it.ID).Update("total", it.Total).Error; err != nil {
				return err
			}
		}
		return nil
	}
	if err := deleteLineItems(tx, doc); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = 0
		items[i].OwnerID = doc.DocumentID()
		items[i].OwnerType = string(doc.Kind())
	}
	return tx.Create(&items).Error
}

func deleteLineItems(tx *gorm.DB, doc models.Document) error {
	return tx.Where("owner_type = ? AND owner_id = ?", string(doc.Kind()), doc.DocumentID()).
		Delete(&models.LineItem{}).Error
}

// IssueDocument finalizes a draft: freezes the customer snapshot, promotes a
// potential customer, synchronizes an unlinked contact into the customer
// list and, for receipts on a milestone, recomputes the milestone.
func (e *Engine) IssueDocument(ctx context.Context, kind models.Kind, id uint) (models.Document, error) {
	actor := auth.Actor(ctx)
	var doc models.Document
	err := e.tx(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		if err := checkTransition(d, models.StatusIssued); err != nil {
			return err
		}
		links := d.Context()
		if _, err := ValidateContext(tx, ContextRequest{
			CustomerID: links.CustomerID, ProjectID: links.ProjectID,
			MilestoneID: links.MilestoneID, ContextType: links.ContextType,
		}); err != nil {
			return err
		}

		now := e.now()
		set := map[string]interface{}{"issued_at": now, "issued_by": actor, "pdf_url": ""}
		snap, customer, err := TakeSnapshot(tx, d, now)
		if err != nil {
			return err
		}
		if d.State().CustomerSnapshot == nil {
			set["customer_snapshot"] = datatypes.NewJSONType(snap)
		}
		if err := advance(tx, d, models.StatusIssued, now, set); err != nil {
			return err
		}

		if customer != nil {
			if err := promote(tx, customer); err != nil {
				return err
			}
		} else if d.Contact().HasIdentity() {
			if _, err := Synchronize(tx, *d.Contact(), actor); err != nil {
				return err
			}
		}

		if r, ok := d.(*models.Receipt); ok && r.MilestoneID != nil {
			date := r.ReceiptDate
			if _, err := recomputeMilestone(tx, *r.MilestoneID, &date); err != nil {
				return err
			}
		}
		doc, err = e.load(tx, kind, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, documentEvent(models.ActionIssue, actor, doc,
		fmt.Sprintf("Issued %s %s", kind, doc.DocumentNumber())))
	return doc, nil
}

// CancelDocument voids an issued document. The cancelled artifact is rendered
// and locked in the same transaction; a rendering failure aborts the cancel.
func (e *Engine) CancelDocument(ctx context.Context, kind models.Kind, id uint, reason string) (models.Document, error) {
	v := validation.Violations{}
	validation.Required("reason", reason, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	if e.renderer == nil {
		return nil, ErrNoRenderer
	}
	actor := auth.Actor(ctx)
	var doc models.Document
	err := e.tx(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		now := e.now()
		if err := advance(tx, d, models.StatusCancelled, now, map[string]interface{}{
			"cancelled_at":  now,
			"cancelled_by":  actor,
			"cancel_reason": reason,
		}); err != nil {
			return err
		}
		if d, err = e.load(tx, kind, id, false); err != nil {
			return err
		}
		url, err := e.renderer.Render(ctx, d)
		if err != nil {
			return fmt.Errorf("render cancelled %s %s: %w", kind, d.DocumentNumber(), err)
		}
		err = tx.Table(kind.Table()).Where("id = ?", id).
			Updates(map[string]interface{}{"pdf_url": url, "pdf_locked": true}).Error
		if err != nil {
			return err
		}

		if r, ok := d.(*models.Receipt); ok && r.MilestoneID != nil {
			if _, err := recomputeMilestone(tx, *r.MilestoneID, nil); err != nil {
				return err
			}
		}
		doc, err = e.load(tx, kind, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, documentEvent(models.ActionCancel, actor, doc,
		fmt.Sprintf("Cancelled %s %s: %s", kind, doc.DocumentNumber(), reason)))
	return doc, nil
}

// DeleteDocument removes a draft document and its line items.
func (e *Engine) DeleteDocument(ctx context.Context, kind models.Kind, id uint) error {
	actor := auth.Actor(ctx)
	var doc models.Document
	err := e.tx(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		if err := checkEditable(d); err != nil {
			return err
		}
		if err := deleteLineItems(tx, d); err != nil {
			return err
		}
		res := tx.Where("status = ?", models.StatusDraft).Delete(d)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %s changed concurrently", ErrImmutable, kind, d.DocumentNumber())
		}
		doc = d
		return nil
	})
	if err != nil {
		return err
	}
	e.record(ctx, documentEvent(models.ActionDelete, actor, doc,
		fmt.Sprintf("Deleted %s %s", kind, doc.DocumentNumber())))
	return nil
}

// GeneratePDF returns the document's artifact URL, rendering and storing a
// new one unless the current artifact is locked.
func (e *Engine) GeneratePDF(ctx context.Context, kind models.Kind, id uint) (string, error) {
	if e.renderer == nil {
		return "", ErrNoRenderer
	}
	actor := auth.Actor(ctx)
	var (
		doc      models.Document
		url      string
		rendered bool
	)
	err := e.tx(ctx, func(tx *gorm.DB) error {
		d, err := e.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		doc = d
		st := d.State()
		if st.PDFLocked && st.PDFURL != "" {
			url = st.PDFURL
			return nil
		}
		if url, err = e.renderer.Render(ctx, d); err != nil {
			return fmt.Errorf("render %s %s: %w", kind, d.DocumentNumber(), err)
		}
		rendered = true
		return tx.Table(kind.Table()).Where("id = ? AND pdf_locked = ?", id, false).
			Update("pdf_url", url).Error
	})
	if err != nil {
		return "", err
	}
	if rendered {
		e.record(ctx, documentEvent(models.ActionGeneratePDF, actor, doc,
			fmt.Sprintf("Generated PDF for %s %s", kind, doc.DocumentNumber())))
	}
	return url, nil
}

// EmailRequest addresses a document email.
type EmailRequest struct {
	To      string
	Subject string
	Message string
}

// SendDocument mails a non-draft document's artifact and logs the send.
func (e *Engine) SendDocument(ctx context.Context, kind models.Kind, id uint, req EmailRequest) error {
	v := validation.Violations{}
	validation.Required("to", req.To, v)
	if err := invalid(v); err != nil {
		return err
	}
	if e.mailer == nil {
		return ErrNoMailer
	}
	doc, err := e.GetDocument(ctx, kind, id)
	if err != nil {
		return err
	}
	if doc.State().IsDraft() {
		return fmt.Errorf("%w: %s %s is a draft", ErrInvalidTransition, kind, doc.DocumentNumber())
	}
	url, err := e.GeneratePDF(ctx, kind, id)
	if err != nil {
		return err
	}
	subject := req.Subject
	if subject == "" {
		subject = fmt.Sprintf("%s %s", kind, doc.DocumentNumber())
	}
	if err := e.mailer.Send(ctx, Email{
		To: req.To, Subject: subject, Message: req.Message,
		DocumentNumber: doc.DocumentNumber(), AttachmentURL: url,
	}); err != nil {
		return fmt.Errorf("send %s %s: %w", kind, doc.DocumentNumber(), err)
	}

	actor := auth.Actor(ctx)
	row := models.EmailLog{
		UserID: actor, DocumentKind: kind, DocumentID: id, DocumentNumber: doc.DocumentNumber(),
		CustomerID: doc.Context().CustomerID, RecipientEmail: req.To,
		Subject: subject, Message: req.Message, PDFURL: url,
	}
	if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
		e.log.Error().Err(err).Str("number", doc.DocumentNumber()).Msg("email sent but not logged")
	}
	e.record(ctx, documentEvent(models.ActionSendEmail, actor, doc,
		fmt.Sprintf("Sent %s %s to %s", kind, doc.DocumentNumber(), req.To)))
	return nil
}
