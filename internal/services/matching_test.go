package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facturio/facturio/internal/bank"
	"github.com/facturio/facturio/internal/models"
)

// openInvoice validates a fresh draft so the matcher sees it.
func openInvoice(t *testing.T, svc *LifecycleService, companyID, clientID uint) *models.Invoice {
	t.Helper()
	inv, err := svc.CreateDraft(context.Background(), sampleDraft(companyID, clientID), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	validated, err := svc.Validate(context.Background(), inv.ID, 1)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return validated
}

func newMatching(t *testing.T) (*MatchingService, *LifecycleService, uint, uint) {
	t.Helper()
	lc, conn, _ := newLifecycle(t)
	companyID, clientID := seedParties(t, conn)
	m := NewMatchingService(conn)
	m.now = lc.now
	return m, lc, companyID, clientID
}

func settled(id, reference, counterparty string, cents int64) bank.Transaction {
	return bank.Transaction{
		ID:           id,
		AmountCents:  cents,
		Currency:     "EUR",
		Reference:    reference,
		Counterparty: counterparty,
		SettledAt:    time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestStrongMatchOnReference(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID) // FA-2025-0001, TTC 1440.00

	report, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "Paiement INV-001 merci", "Some Payer SAS", 144000),
	}, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
	ps, err := m.Payments(ctx, inv.ID)
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	if len(ps) != 1 {
		t.Fatalf("payments = %d", len(ps))
	}
	p := ps[0]
	if p.MatchType != models.MatchTypeStrong || p.Confidence != 1.0 {
		t.Fatalf("match = %s conf %v", p.MatchType, p.Confidence)
	}
	if p.Status != models.PaymentStatusMatched {
		t.Fatalf("status = %s, proposals are not auto-confirmed", p.Status)
	}
	if !p.Amount.Equal(dec("1440")) {
		t.Fatalf("amount = %s", p.Amount)
	}
}

func TestStrongMatchVariants(t *testing.T) {
	refs := []string{
		"FA-2025-0001",
		"facture 001 mars",
		"FACT-001",
		"virement 0001",
	}
	for _, ref := range refs {
		t.Run(ref, func(t *testing.T) {
			m, lc, companyID, clientID := newMatching(t)
			inv := openInvoice(t, lc, companyID, clientID)
			report, err := m.Sync(context.Background(), []bank.Transaction{
				settled("tx-1", ref, "Whoever", 144000),
			}, 1)
			if err != nil {
				t.Fatalf("sync: %v", err)
			}
			if report.Matched != 1 {
				t.Fatalf("reference %q did not match: %+v", ref, report)
			}
			ps, _ := m.Payments(context.Background(), inv.ID)
			if len(ps) != 1 || ps[0].MatchType != models.MatchTypeStrong {
				t.Fatalf("reference %q: payments = %+v", ref, ps)
			}
		})
	}
}

func TestStrongMatchRejectsAmountMismatch(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	openInvoice(t, lc, companyID, clientID) // TTC 1440.00

	// One cent off, distinctive payer name so the weak path stays quiet too.
	report, err := m.Sync(context.Background(), []bank.Transaction{
		settled("tx-1", "INV-001", "Zzyzx Holdings", 144001),
	}, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 0 || report.Unmatched != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestWeakMatchOnCounterpartyName(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID) // client "Acme Corp"

	report, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "virement", "ACME CORPORATION", 144000),
	}, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 1 {
		t.Fatalf("report = %+v", report)
	}
	ps, _ := m.Payments(ctx, inv.ID)
	if len(ps) != 1 {
		t.Fatalf("payments = %d", len(ps))
	}
	if ps[0].MatchType != models.MatchTypeWeak {
		t.Fatalf("match type = %s", ps[0].MatchType)
	}
	if ps[0].Confidence < 0.70 {
		t.Fatalf("confidence = %v, want >= 0.70", ps[0].Confidence)
	}
}

func TestWeakMatchRejectsUnrelatedName(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	openInvoice(t, lc, companyID, clientID)

	report, err := m.Sync(context.Background(), []bank.Transaction{
		settled("tx-1", "virement", "Globex Inc", 144000),
	}, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 0 || report.Unmatched != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestSyncSkipsDebitsAndKnownTransactions(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID)

	batch := []bank.Transaction{
		settled("tx-1", "INV-001", "Acme Corp", 144000),
		settled("tx-2", "INV-001", "Acme Corp", -144000), // debit
	}
	report, err := m.Sync(ctx, batch, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 1 || report.Skipped != 1 {
		t.Fatalf("first pass = %+v", report)
	}

	// Second pass over the same window: tx-1 is already bound.
	report, err = m.Sync(ctx, batch, 1)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if report.Matched != 0 || report.Skipped != 2 {
		t.Fatalf("second pass = %+v", report)
	}
	ps, _ := m.Payments(ctx, inv.ID)
	if len(ps) != 1 {
		t.Fatalf("payments after resync = %d", len(ps))
	}

	// The raw ingest ledger holds each transaction exactly once.
	var rows int64
	m.db.Model(&models.BankTransaction{}).Count(&rows)
	if rows != 2 {
		t.Fatalf("ingested rows = %d, want 2", rows)
	}
	var matchedRows int64
	m.db.Model(&models.BankTransaction{}).Where("matched = ?", true).Count(&matchedRows)
	if matchedRows != 1 {
		t.Fatalf("matched rows = %d, want 1", matchedRows)
	}
}

func TestConfirmMarksInvoicePaid(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID)

	if _, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "INV-001", "Acme Corp", 144000),
	}, 1); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ps, _ := m.Payments(ctx, inv.ID)
	p, err := m.Confirm(ctx, ps[0].ID, 1)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if p.Status != models.PaymentStatusConfirmed || p.ConfirmedAt == nil {
		t.Fatalf("payment = %+v", p)
	}
	got, _ := lc.Get(ctx, inv.ID)
	if got.Status != models.StatusPaid || got.PaidAt == nil {
		t.Fatalf("invoice status = %s", got.Status)
	}

	// A second confirmation attempt fails.
	if _, err := m.Confirm(ctx, ps[0].ID, 1); err != ErrAlreadyConfirmed {
		t.Fatalf("reconfirm: err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirmUnderpaymentMarksPartiallyPaid(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID) // TTC 1440.00

	// Bind manually: the proposal exists, the amount falls short.
	p := models.InvoicePayment{
		InvoiceID:             inv.ID,
		ExternalTransactionID: "tx-manual",
		Amount:                dec("1000"),
		Currency:              "EUR",
		MatchType:             models.MatchTypeStrong,
		Confidence:            1.0,
		Status:                models.PaymentStatusMatched,
	}
	if err := m.db.Create(&p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	if _, err := m.Confirm(ctx, p.ID, 1); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, _ := lc.Get(ctx, inv.ID)
	if got.Status != models.StatusPartiallyPaid {
		t.Fatalf("status = %s, want PARTIALLY_PAID", got.Status)
	}
}

func TestConfirmOnSettledInvoiceFails(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID)

	for i, id := range []string{"tx-a", "tx-b"} {
		p := models.InvoicePayment{
			InvoiceID:             inv.ID,
			ExternalTransactionID: id,
			Amount:                dec("1440"),
			Currency:              "EUR",
			MatchType:             models.MatchTypeStrong,
			Confidence:            1.0,
			Status:                models.PaymentStatusMatched,
		}
		if err := m.db.Create(&p).Error; err != nil {
			t.Fatalf("seed payment %d: %v", i, err)
		}
	}
	ps, _ := m.Payments(ctx, inv.ID)
	if _, err := m.Confirm(ctx, ps[0].ID, 1); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	if _, err := m.Confirm(ctx, ps[1].ID, 1); err != ErrAlreadyConfirmed {
		t.Fatalf("confirm second: err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestRejectFreesTransaction(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID)

	if _, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "INV-001", "Acme Corp", 144000),
	}, 1); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ps, _ := m.Payments(ctx, inv.ID)
	if err := m.Reject(ctx, ps[0].ID, 1); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// The external id is free again: a new sync pass rebinds it.
	report, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "INV-001", "Acme Corp", 144000),
	}, 1)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if report.Matched != 1 {
		t.Fatalf("resync report = %+v", report)
	}
}

func TestMatchedInvoiceWithConfirmedPaymentIsNotRebound(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	inv := openInvoice(t, lc, companyID, clientID)

	if _, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-1", "INV-001", "Acme Corp", 144000),
	}, 1); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ps, _ := m.Payments(ctx, inv.ID)
	if _, err := m.Confirm(ctx, ps[0].ID, 1); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// The invoice is PAID now, so it is no longer open and a duplicate
	// transfer stays unmatched.
	report, err := m.Sync(ctx, []bank.Transaction{
		settled("tx-2", "INV-001", "Acme Corp", 144000),
	}, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 0 || report.Unmatched != 1 {
		t.Fatalf("report = %+v", report)
	}
}

type fakeSource struct {
	txs []bank.Transaction
	err error
}

func (f fakeSource) FetchAll(context.Context, *time.Time, int) ([]bank.Transaction, error) {
	return f.txs, f.err
}

func TestSyncFromProvider(t *testing.T) {
	m, lc, companyID, clientID := newMatching(t)
	ctx := context.Background()
	openInvoice(t, lc, companyID, clientID)

	report, err := m.SyncFromProvider(ctx, fakeSource{
		txs: []bank.Transaction{settled("tx-1", "INV-001", "Acme Corp", 144000)},
	}, nil, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 1 {
		t.Fatalf("report = %+v", report)
	}

	_, err = m.SyncFromProvider(ctx, fakeSource{err: errors.New("gateway timeout")}, nil, 1)
	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) || extErr.Service != "bank api" {
		t.Fatalf("provider failure: err = %v, want ExternalServiceError", err)
	}
}

func TestSimilarityScore(t *testing.T) {
	cases := []struct {
		a, b  string
		above bool
	}{
		{"acme corp", "acme corporation", true},
		{"acme corp", "acme corp", true},
		{"acme corp", "globex inc", false},
		{"", "acme corp", false},
	}
	for _, c := range cases {
		got := similarity(normalizeName(c.a), normalizeName(c.b))
		if (got >= weakMatchThreshold) != c.above {
			t.Errorf("similarity(%q, %q) = %v, above-threshold want %v", c.a, c.b, got, c.above)
		}
	}
}
