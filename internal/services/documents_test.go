package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/go-billing/internal/models"
	"gorm.io/gorm"
)

func TestCreateInvoice_ComputesTotals(t *testing.T) {
	e, rec := newTestEngine(t)

	inv, err := e.CreateInvoice(asUser(3), scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Number != "INV-2026-000001" {
		t.Errorf("number = %q, want INV-2026-000001", inv.Number)
	}
	if !inv.Subtotal.Equal(dec("118")) {
		t.Errorf("subtotal = %s, want 118", inv.Subtotal)
	}
	if !inv.Total.Equal(dec("129.8")) {
		t.Errorf("total = %s, want 129.8", inv.Total)
	}
	if inv.Status != models.StatusDraft || inv.UserID != 3 {
		t.Errorf("status/user = %s/%d", inv.Status, inv.UserID)
	}
	if inv.ContextType != models.ContextNone {
		t.Errorf("context type = %s, want none", inv.ContextType)
	}

	got, err := e.GetDocument(asUser(3), models.KindInvoice, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored := got.(*models.Invoice)
	if len(stored.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(stored.LineItems))
	}
	if !stored.LineItems[1].Total.Equal(dec("18")) {
		t.Errorf("line 2 total = %s, want 18", stored.LineItems[1].Total)
	}
	if !stored.Total.Equal(dec("129.8")) {
		t.Errorf("stored total = %s, want 129.8", stored.Total)
	}

	ev := rec.last()
	if ev.Action != models.ActionCreate || ev.EntityNumber != inv.Number || ev.Actor != 3 {
		t.Errorf("audit event = %+v", ev)
	}
}

func TestCreateDocument_NumbersPerKind(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := asUser(1)

	var prev string
	for i := 0; i < 3; i++ {
		inv, err := e.CreateInvoice(ctx, scenarioInvoice())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if prev != "" && inv.Number <= prev {
			t.Errorf("number %q not greater than %q", inv.Number, prev)
		}
		prev = inv.Number
	}
	if prev != "INV-2026-000003" {
		t.Errorf("last invoice = %q, want INV-2026-000003", prev)
	}

	q, err := e.CreateQuote(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	if q.Number != "QUO-2026-000001" {
		t.Errorf("quote number = %q, want QUO-2026-000001", q.Number)
	}

	r, err := e.CreateReceipt(ctx, DocumentInput{Party: models.Party{ClientName: "Ana"}, Amount: dec("10")})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if r.Number != "REC-2026-000001" {
		t.Errorf("receipt number = %q, want REC-2026-000001", r.Number)
	}
	if r.PaymentMethod != models.PaymentCash || !r.ReceiptDate.Equal(testNow) {
		t.Errorf("receipt defaults = %s / %s", r.PaymentMethod, r.ReceiptDate)
	}
}

func TestCreateDocument_Validation(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := asUser(1)

	noName := scenarioInvoice()
	noName.ClientName = ""
	negTax := scenarioInvoice()
	negTax.TaxPercent = dec("-1")
	negDiscount := scenarioInvoice()
	negDiscount.DiscountPercent = dec("-5")
	negQty := scenarioInvoice()
	negQty.LineItems[0].Quantity = dec("-2")

	tests := []struct {
		name  string
		kind  models.Kind
		in    DocumentInput
		field string
	}{
		{"missing contact identity", models.KindInvoice, noName, "client_name"},
		{"negative tax", models.KindQuote, negTax, "tax_percent"},
		{"negative discount", models.KindInvoice, negDiscount, "discount_percent"},
		{"negative quantity", models.KindInvoice, negQty, "line_items[0].quantity"},
		{"zero receipt", models.KindReceipt, DocumentInput{Party: models.Party{ClientName: "Ana"}}, "amount"},
		{"unknown payment method", models.KindReceipt, DocumentInput{
			Party: models.Party{ClientName: "Ana"}, Amount: dec("5"), PaymentMethod: "barter",
		}, "payment_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateDocument(ctx, tt.kind, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("violations = %v, want field %s", verr.Fields, tt.field)
			}
			if !IsValidation(err) {
				t.Errorf("IsValidation(err) = false")
			}
		})
	}
	if n := len(rec.actions()); n != 0 {
		t.Errorf("audit events after failures = %d, want 0", n)
	}
}

func TestCreateDocument_ReceiptInvoiceMustExist(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateReceipt(asUser(1), DocumentInput{
		Party: models.Party{ClientName: "Ana"}, Amount: dec("5"), InvoiceID: ptr(uint(404)),
	})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateDocument_FillsContactFromCustomer(t *testing.T) {
	e, _ := newTestEngine(t)
	c := seedCustomer(t, e.DB(), "Bruno", "0611000001", models.CustomerPotential)

	in := scenarioInvoice()
	in.Party = models.Party{Address: "12 Quay Street"}
	in.Context = ContextRequest{CustomerID: &c.ID}
	inv, err := e.CreateInvoice(asUser(1), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.ClientName != "Bruno" || inv.Telephone1 != "0611000001" || inv.Email != "bruno@example.com" {
		t.Errorf("contact not filled from customer: %+v", inv.Party)
	}
	if inv.Address != "12 Quay Street" {
		t.Errorf("explicit address overwritten: %q", inv.Address)
	}
}

func TestUpdateDocument_Draft(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.GeneratePDF(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("pdf: %v", err)
	}

	due := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	doc, err := e.UpdateDocument(ctx, models.KindInvoice, inv.ID, DocumentPatch{
		LineItems: []LineItemInput{
			{Description: "Audit", Quantity: dec("4"), UnitPrice: dec("25")},
		},
		DiscountPercent: ptr(dec("10")),
		DueDate:         &due,
		Notes:           ptr("net 30"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := doc.(*models.Invoice)
	if !got.Subtotal.Equal(dec("100")) {
		t.Errorf("subtotal = %s, want 100", got.Subtotal)
	}
	// 100 - 10% = 90, + 10% tax = 99
	if !got.Total.Equal(dec("99")) {
		t.Errorf("total = %s, want 99", got.Total)
	}
	if len(got.LineItems) != 1 || got.LineItems[0].Description != "Audit" {
		t.Errorf("line items = %+v", got.LineItems)
	}
	if got.PDFURL != "" {
		t.Errorf("pdf url = %q, want cleared", got.PDFURL)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) || got.Notes != "net 30" {
		t.Errorf("due date/notes not applied: %v %q", got.DueDate, got.Notes)
	}

	var items int64
	e.DB().Model(&models.LineItem{}).Where("owner_type = ? AND owner_id = ?", "invoice", inv.ID).Count(&items)
	if items != 1 {
		t.Errorf("stored line items = %d, want 1", items)
	}
	if rec.last().Action != models.ActionUpdate {
		t.Errorf("last audit action = %s, want update", rec.last().Action)
	}
}

func TestUpdateDocument_TaxOnlyKeepsLines(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := asUser(1)
	q, err := e.CreateQuote(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := e.UpdateDocument(ctx, models.KindQuote, q.ID, DocumentPatch{TaxPercent: ptr(dec("20"))})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := doc.(*models.Quote)
	if len(got.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(got.LineItems))
	}
	if !got.Total.Equal(dec("141.6")) {
		t.Errorf("total = %s, want 141.6", got.Total)
	}
}

func TestUpdateDocument_Receipt(t *testing.T) {
	tests := []struct {
		name    string
		patch   DocumentPatch
		check   func(error) bool
		amount  string
		method  models.PaymentMethod
		invoice bool
	}{
		{
			name:   "amount and method",
			patch:  DocumentPatch{Amount: ptr(dec("150")), PaymentMethod: ptr(models.PaymentCard)},
			amount: "150", method: models.PaymentCard,
		},
		{
			name:   "link existing invoice",
			patch:  DocumentPatch{InvoiceID: ptr(uint(1))},
			amount: "10", method: models.PaymentCash, invoice: true,
		},
		{name: "unknown invoice", patch: DocumentPatch{InvoiceID: ptr(uint(999))}, check: IsNotFound},
		{name: "zero amount", patch: DocumentPatch{Amount: ptr(dec("0"))}, check: IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			ctx := asUser(1)
			if _, err := e.CreateInvoice(ctx, scenarioInvoice()); err != nil {
				t.Fatalf("create invoice: %v", err)
			}
			r, err := e.CreateReceipt(ctx, DocumentInput{Party: models.Party{ClientName: "Ana"}, Amount: dec("10")})
			if err != nil {
				t.Fatalf("create receipt: %v", err)
			}

			doc, err := e.UpdateDocument(ctx, models.KindReceipt, r.ID, tt.patch)
			if tt.check != nil {
				if !tt.check(err) {
					t.Fatalf("err = %v", err)
				}
				stored, _ := e.GetDocument(ctx, models.KindReceipt, r.ID)
				if got := stored.(*models.Receipt); !got.AmountReceived.Equal(dec("10")) || got.InvoiceID != nil {
					t.Errorf("rejected patch was stored: %s / %v", got.AmountReceived, got.InvoiceID)
				}
				return
			}
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			got := doc.(*models.Receipt)
			if !got.AmountReceived.Equal(dec(tt.amount)) || got.PaymentMethod != tt.method {
				t.Errorf("receipt = %s / %s, want %s / %s", got.AmountReceived, got.PaymentMethod, tt.amount, tt.method)
			}
			if tt.invoice != (got.InvoiceID != nil) {
				t.Errorf("invoice link = %v", got.InvoiceID)
			}
		})
	}
}

func TestUpdateDocument_IssuedIsImmutable(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	before, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	events := len(rec.actions())

	due := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = e.UpdateDocument(ctx, models.KindInvoice, inv.ID, DocumentPatch{DueDate: &due})
	if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrImmutable) {
		t.Fatalf("err = %v, want ErrImmutable", err)
	}
	if err := e.DeleteDocument(ctx, models.KindInvoice, inv.ID); !IsInvalidTransition(err) {
		t.Fatalf("delete err = %v, want ErrInvalidTransition", err)
	}

	after, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	b, a := before.(*models.Invoice), after.(*models.Invoice)
	if a.DueDate != nil || !a.Total.Equal(b.Total) || a.Status != models.StatusIssued || !a.UpdatedAt.Equal(b.UpdatedAt) {
		t.Errorf("issued invoice changed after failed edits: before %+v after %+v", b, a)
	}
	if len(rec.actions()) != events {
		t.Errorf("failed edits emitted audit events")
	}
}

func TestDeleteDocument_Draft(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := asUser(1)
	q, err := e.CreateQuote(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.DeleteDocument(ctx, models.KindQuote, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.GetDocument(ctx, models.KindQuote, q.ID); !IsNotFound(err) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	var items int64
	e.DB().Model(&models.LineItem{}).Where("owner_type = ? AND owner_id = ?", "quote", q.ID).Count(&items)
	if items != 0 {
		t.Errorf("line items left = %d", items)
	}
	if rec.last().Action != models.ActionDelete || rec.last().EntityNumber != q.Number {
		t.Errorf("last audit = %+v", rec.last())
	}
	if err := e.DeleteDocument(ctx, models.KindQuote, q.ID); !IsNotFound(err) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestIssueDocument_SnapshotAndPromotion(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := asUser(5)
	c := seedCustomer(t, e.DB(), "Chloe", "0622000007", models.CustomerPotential)

	in := scenarioInvoice()
	in.Party = models.Party{}
	in.Context = ContextRequest{CustomerID: &c.ID}
	q, err := e.CreateQuote(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := e.IssueDocument(ctx, models.KindQuote, q.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	issued := doc.(*models.Quote)
	snap := issued.Snapshot()
	if snap == nil {
		t.Fatalf("snapshot not set")
	}
	if snap.Telephone1 != "0622000007" || snap.CustomerID == nil || *snap.CustomerID != c.ID {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Version != models.SnapshotVersion {
		t.Errorf("snapshot version = %d", snap.Version)
	}
	if issued.IssuedAt == nil || !issued.IssuedAt.Equal(testNow) || issued.IssuedBy == nil || *issued.IssuedBy != 5 {
		t.Errorf("issued stamps = %v / %v", issued.IssuedAt, issued.IssuedBy)
	}

	var stored models.Customer
	if err := e.DB().First(&stored, c.ID).Error; err != nil {
		t.Fatalf("load customer: %v", err)
	}
	if stored.Status != models.CustomerActive {
		t.Errorf("customer status = %s, want active", stored.Status)
	}

	// Later customer edits and a second issue leave the snapshot alone.
	e.DB().Model(&stored).Update("telephone1", "0699999999")
	if _, err := e.IssueDocument(ctx, models.KindQuote, q.ID); !IsInvalidTransition(err) {
		t.Fatalf("second issue err = %v, want ErrInvalidTransition", err)
	}
	again, _ := e.GetDocument(ctx, models.KindQuote, q.ID)
	if got := again.State().Snapshot(); got == nil || got.Telephone1 != "0622000007" {
		t.Errorf("snapshot changed: %+v", got)
	}
	if rec.last().Action != models.ActionIssue {
		t.Errorf("last audit = %s, want issue", rec.last().Action)
	}
}

func TestIssueDocument_UnlinkedContactIsSynchronized(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := asUser(1)
	in := scenarioInvoice()
	in.Party = models.Party{ClientName: "Dora", Telephone1: "0633000001", Email: "dora@example.com"}
	inv, err := e.CreateInvoice(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	snap := doc.State().Snapshot()
	if snap == nil || snap.CustomerID != nil || snap.Name != "Dora" {
		t.Errorf("snapshot = %+v, want document contact fields", snap)
	}
	if doc.Context().CustomerID != nil {
		t.Errorf("document linked to customer %d", *doc.Context().CustomerID)
	}

	c, err := e.FindCustomerByPhone(ctx, "0633000001")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if c.Status != models.CustomerPotential || c.Email != "dora@example.com" {
		t.Errorf("synchronized customer = %+v", c)
	}
}

func TestIssueDocument_InactiveCustomer(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := asUser(1)
	c := seedCustomer(t, e.DB(), "Emil", "0644000001", models.CustomerActive)
	in := scenarioInvoice()
	in.Context = ContextRequest{CustomerID: &c.ID}
	inv, err := e.CreateInvoice(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.SetCustomerActive(ctx, c.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID); !IsInvalidContext(err) {
		t.Fatalf("issue err = %v, want ErrInvalidContext", err)
	}
	doc, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	if doc.State().Status != models.StatusDraft || doc.State().CustomerSnapshot != nil {
		t.Errorf("failed issue changed the document: %+v", doc.State())
	}
}

func TestAdvance_StaleStatusIsInvalidTransition(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Two requests read the draft before either writes.
	first, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	second, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)

	if err := advance(e.DB(), first, models.StatusIssued, testNow, nil); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	err = advance(e.DB(), second, models.StatusIssued, testNow, nil)
	if !IsInvalidTransition(err) {
		t.Fatalf("second advance err = %v, want ErrInvalidTransition", err)
	}
	if second.State().Status != models.StatusDraft {
		t.Errorf("stale copy status = %s, want unchanged draft", second.State().Status)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		kind     models.Kind
		from, to models.Status
		want     bool
	}{
		{models.KindInvoice, models.StatusDraft, models.StatusIssued, true},
		{models.KindInvoice, models.StatusIssued, models.StatusCancelled, true},
		{models.KindInvoice, models.StatusDraft, models.StatusCancelled, false},
		{models.KindInvoice, models.StatusCancelled, models.StatusIssued, false},
		{models.KindInvoice, models.StatusIssued, models.StatusInvoiced, false},
		{models.KindQuote, models.StatusIssued, models.StatusInvoiced, true},
		{models.KindQuote, models.StatusDraft, models.StatusInvoiced, true},
		{models.KindQuote, models.StatusInvoiced, models.StatusCancelled, false},
		{models.KindQuote, models.StatusCancelled, models.StatusInvoiced, false},
		{models.KindReceipt, models.StatusIssued, models.StatusCancelled, true},
		{models.KindReceipt, models.StatusDraft, models.StatusInvoiced, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.kind, tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s, %s) = %v, want %v", tt.kind, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCancelDocument(t *testing.T) {
	r := &countingRenderer{}
	e, rec := newTestEngine(t, WithRenderer(r))
	ctx := asUser(2)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.CancelDocument(ctx, models.KindInvoice, inv.ID, "wrong client"); !IsInvalidTransition(err) {
		t.Fatalf("cancel draft err = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := e.CancelDocument(ctx, models.KindInvoice, inv.ID, "  "); !IsValidation(err) {
		t.Fatalf("blank reason err = %v, want ErrValidation", err)
	}

	doc, err := e.CancelDocument(ctx, models.KindInvoice, inv.ID, "wrong client")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st := doc.State()
	if st.Status != models.StatusCancelled || st.CancelReason != "wrong client" {
		t.Errorf("state = %+v", st)
	}
	if st.CancelledBy == nil || *st.CancelledBy != 2 || st.CancelledAt == nil {
		t.Errorf("cancel stamps = %v / %v", st.CancelledBy, st.CancelledAt)
	}
	if !st.PDFLocked || st.PDFURL != "https://files.test/INV-2026-000001-cancelled-1.pdf" {
		t.Errorf("artifact = %q locked=%v", st.PDFURL, st.PDFLocked)
	}
	if rec.last().Action != models.ActionCancel {
		t.Errorf("last audit = %s, want cancel", rec.last().Action)
	}

	url, err := e.GeneratePDF(ctx, models.KindInvoice, inv.ID)
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if url != st.PDFURL || r.calls != 1 {
		t.Errorf("locked artifact re-rendered: %q (calls %d)", url, r.calls)
	}
	if _, err := e.CancelDocument(ctx, models.KindInvoice, inv.ID, "again"); !IsInvalidTransition(err) {
		t.Fatalf("double cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelDocument_RenderFailureAborts(t *testing.T) {
	r := &countingRenderer{fail: errors.New("renderer down")}
	e, _ := newTestEngine(t, WithRenderer(r))
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := e.CancelDocument(ctx, models.KindInvoice, inv.ID, "duplicate"); err == nil {
		t.Fatalf("cancel succeeded without an artifact")
	}
	doc, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	if doc.State().Status != models.StatusIssued || doc.State().CancelReason != "" {
		t.Errorf("failed cancel left state %+v", doc.State())
	}
}

func TestGeneratePDF_Draft(t *testing.T) {
	r := &countingRenderer{}
	e, rec := newTestEngine(t, WithRenderer(r))
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	url, err := e.GeneratePDF(ctx, models.KindInvoice, inv.ID)
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if url != "https://files.test/INV-2026-000001-draft-1.pdf" {
		t.Errorf("url = %q", url)
	}
	doc, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	if doc.State().PDFURL != url || doc.State().PDFLocked {
		t.Errorf("stored artifact = %q locked=%v", doc.State().PDFURL, doc.State().PDFLocked)
	}
	if rec.last().Action != models.ActionGeneratePDF {
		t.Errorf("last audit = %s", rec.last().Action)
	}
}

func TestIssueDocument_ClearsDraftArtifact(t *testing.T) {
	e, _ := newTestEngine(t, WithRenderer(&countingRenderer{}))
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.GeneratePDF(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	doc, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if doc.State().PDFURL != "" {
		t.Errorf("issued invoice keeps draft artifact %q", doc.State().PDFURL)
	}
	stored, _ := e.GetDocument(ctx, models.KindInvoice, inv.ID)
	if stored.State().PDFURL != "" {
		t.Errorf("stored pdf_url = %q, want empty", stored.State().PDFURL)
	}
}

// fixedNumbers hands out numbers from a list, ignoring the database.
type fixedNumbers struct {
	numbers []string
	calls   int
}

func (f *fixedNumbers) Next(_ *gorm.DB, _ models.Kind, _ int) (string, error) {
	n := f.numbers[f.calls%len(f.numbers)]
	f.calls++
	return n, nil
}

func TestCreateDocument_RetriesNumberConflictOnce(t *testing.T) {
	ns := &fixedNumbers{numbers: []string{"INV-2026-000001", "INV-2026-000002"}}
	e, _ := newTestEngine(t, WithNumberSource(ns))
	ctx := asUser(1)

	taken := &models.Invoice{Number: "INV-2026-000001", Party: models.Party{ClientName: "Old"},
		Links: models.Links{ContextType: models.ContextNone}, Lifecycle: models.Lifecycle{Status: models.StatusDraft}}
	if err := e.DB().Create(taken).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Number != "INV-2026-000002" || ns.calls != 2 {
		t.Errorf("number = %q after %d allocations", inv.Number, ns.calls)
	}
	var count int64
	e.DB().Model(&models.LineItem{}).Where("owner_type = ?", "invoice").Count(&count)
	if count != 2 {
		t.Errorf("line items = %d, want 2 (failed attempt must roll back)", count)
	}
}

func TestCreateDocument_ConflictAfterRetry(t *testing.T) {
	ns := &fixedNumbers{numbers: []string{"INV-2026-000001"}}
	e, rec := newTestEngine(t, WithNumberSource(ns))
	taken := &models.Invoice{Number: "INV-2026-000001", Party: models.Party{ClientName: "Old"},
		Links: models.Links{ContextType: models.ContextNone}, Lifecycle: models.Lifecycle{Status: models.StatusDraft}}
	if err := e.DB().Create(taken).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	_, err := e.CreateInvoice(asUser(1), scenarioInvoice())
	if !IsConflict(err) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if ns.calls != 2 {
		t.Errorf("allocations = %d, want 2", ns.calls)
	}
	if len(rec.actions()) != 0 {
		t.Errorf("conflict emitted audit events")
	}
}

func TestAuditFailureIsNonFatal(t *testing.T) {
	failing := RecorderFunc(func(_ context.Context, _ AuditEvent) error {
		return errors.New("audit store unavailable")
	})
	e, _ := newTestEngine(t, WithRecorder(failing))
	inv, err := e.CreateInvoice(asUser(1), scenarioInvoice())
	if err != nil {
		t.Fatalf("create with failing audit: %v", err)
	}
	if _, err := e.IssueDocument(asUser(1), models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("issue with failing audit: %v", err)
	}
}

func TestGormRecorder_PersistsEvents(t *testing.T) {
	db := setupTestDB(t)
	e := NewEngine(db, WithClock(func() time.Time { return testNow }))
	inv, err := e.CreateInvoice(asUser(9), scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var logs []models.AuditLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(logs))
	}
	l := logs[0]
	if l.Action != models.ActionCreate || l.UserID != 9 || l.EntityType != "invoice" || l.EntityID != inv.ID || l.EntityNumber != inv.Number {
		t.Errorf("audit row = %+v", l)
	}
}

func TestSendDocument(t *testing.T) {
	var sent []Email
	mailer := MailerFunc(func(_ context.Context, msg Email) error {
		sent = append(sent, msg)
		return nil
	})
	e, rec := newTestEngine(t, WithRenderer(&countingRenderer{}), WithMailer(mailer))
	ctx := asUser(1)
	inv, err := e.CreateInvoice(ctx, scenarioInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req := EmailRequest{To: "ana@example.com"}
	if err := e.SendDocument(ctx, models.KindInvoice, inv.ID, req); !IsInvalidTransition(err) {
		t.Fatalf("send draft err = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.IssueDocument(ctx, models.KindInvoice, inv.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := e.SendDocument(ctx, models.KindInvoice, inv.ID, req); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sent) != 1 || sent[0].AttachmentURL == "" || sent[0].Subject != "invoice INV-2026-000001" {
		t.Fatalf("sent = %+v", sent)
	}
	var logs []models.EmailLog
	e.DB().Find(&logs)
	if len(logs) != 1 || logs[0].RecipientEmail != "ana@example.com" || logs[0].PDFURL != sent[0].AttachmentURL {
		t.Errorf("email logs = %+v", logs)
	}
	if rec.last().Action != models.ActionSendEmail {
		t.Errorf("last audit = %s", rec.last().Action)
	}
	if err := e.SendDocument(ctx, models.KindInvoice, inv.ID, EmailRequest{}); !IsValidation(err) {
		t.Errorf("missing recipient err = %v", err)
	}
}
