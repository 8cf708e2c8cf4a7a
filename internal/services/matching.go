package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/facturio/facturio/internal/bank"
	"github.com/facturio/facturio/internal/logger"
	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/numbering"
)

// amountTolerance absorbs provider-side rounding of the settled amount.
// The bound is strict: a full 1-cent difference is a mismatch.
var amountTolerance = decimal.New(1, -2) // 0.01

// weakMatchThreshold is the minimum normalized name similarity for a weak
// match proposal.
const weakMatchThreshold = 0.70

// referencePatterns extract an invoice sequence number from a free-text
// payment reference, tried in order. The first capture group is the number.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bFA-(\d{4})-(\d{4,})\b`),
	regexp.MustCompile(`(?i)\bINV-?(\d+)\b`),
	regexp.MustCompile(`(?i)\bFACTURE\s*-?\s*(\d+)\b`),
	regexp.MustCompile(`(?i)\bFACT\s*-?\s*(\d+)\b`),
	regexp.MustCompile(`\b(\d{3,})\b`),
}

// TransactionSource abstracts the bank client for the sync path.
type TransactionSource interface {
	FetchAll(ctx context.Context, since *time.Time, perPage int) ([]bank.Transaction, error)
}

// SyncReport summarizes one matching run. Per-transaction failures are
// collected, never fatal to the run.
type SyncReport struct {
	ID        string      `json:"id"`
	Fetched   int         `json:"fetched"`
	Skipped   int         `json:"skipped"`
	Matched   int         `json:"matched"`
	Unmatched int         `json:"unmatched"`
	Errors    []SyncError `json:"errors,omitempty"`
}

type SyncError struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// MatchingService proposes and settles bindings between incoming bank
// transactions and open invoices.
type MatchingService struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func NewMatchingService(db *gorm.DB) *MatchingService {
	return &MatchingService{
		db:  db,
		log: logger.WithComponent("matching"),
		now: time.Now,
	}
}

// SyncFromProvider fetches settled transactions from the provider and runs
// the matcher over them. Provider failures surface as ExternalServiceError.
func (s *MatchingService) SyncFromProvider(ctx context.Context, src TransactionSource, since *time.Time, actorID uint) (*SyncReport, error) {
	txs, err := src.FetchAll(ctx, since, 100)
	if err != nil {
		return nil, &ExternalServiceError{Service: "bank api", Err: err}
	}
	return s.Sync(ctx, txs, actorID)
}

// Sync runs the matcher over a batch of transactions. Already-matched
// external ids are excluded up front, so re-syncing an overlapping window
// never produces duplicates. Debit transactions are skipped. One bad
// transaction is recorded in the report and never aborts the rest.
func (s *MatchingService) Sync(ctx context.Context, txs []bank.Transaction, actorID uint) (*SyncReport, error) {
	report := &SyncReport{ID: uuid.NewString(), Fetched: len(txs)}
	if len(txs) == 0 {
		return report, nil
	}

	seen, err := s.knownTransactionIDs(ctx, txs)
	if err != nil {
		return nil, err
	}

	open, err := s.openInvoices(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range txs {
		if err := s.ingest(ctx, t); err != nil {
			return nil, err
		}
		if _, ok := seen[t.ID]; ok || !t.Credit() {
			report.Skipped++
			continue
		}
		matched, err := s.matchOne(ctx, t, open, actorID)
		if err != nil {
			s.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("matching failed")
			report.Errors = append(report.Errors, SyncError{TransactionID: t.ID, Reason: err.Error()})
			continue
		}
		if matched {
			report.Matched++
		} else {
			report.Unmatched++
		}
	}
	return report, nil
}

// ingest records the raw transaction once, keyed by external id. Re-synced
// windows leave existing rows untouched.
func (s *MatchingService) ingest(ctx context.Context, t bank.Transaction) error {
	row := models.BankTransaction{
		ExternalID:   t.ID,
		AmountCents:  t.AmountCents,
		Currency:     t.Currency,
		Reference:    t.Reference,
		Counterparty: t.Counterparty,
		SettledAt:    t.SettledAt,
	}
	return s.db.WithContext(ctx).
		Where("external_id = ?", t.ID).
		FirstOrCreate(&row).Error
}

// knownTransactionIDs returns the external ids of this batch that are
// already bound to a payment.
func (s *MatchingService) knownTransactionIDs(ctx context.Context, txs []bank.Transaction) (map[string]struct{}, error) {
	ids := make([]string, 0, len(txs))
	for _, t := range txs {
		ids = append(ids, t.ID)
	}
	var existing []string
	err := s.db.WithContext(ctx).Model(&models.InvoicePayment{}).
		Where("external_transaction_id IN ?", ids).
		Pluck("external_transaction_id", &existing).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// openInvoices loads every numbered invoice awaiting payment, with the
// client record the weak matcher compares names against.
func (s *MatchingService) openInvoices(ctx context.Context) ([]models.Invoice, error) {
	var invs []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Client").
		Where("status IN ? AND document_type = ? AND invoice_number IS NOT NULL",
			[]models.InvoiceStatus{models.StatusValidated, models.StatusSent},
			models.DocumentTypeInvoice).
		Order("id").
		Find(&invs).Error
	return invs, err
}

func (s *MatchingService) matchOne(ctx context.Context, t bank.Transaction, open []models.Invoice, actorID uint) (bool, error) {
	amount := decimal.New(t.AmountCents, -2)

	if inv := strongMatch(t.Reference, amount, open); inv != nil {
		return true, s.recordMatch(ctx, t, inv, amount, models.MatchTypeStrong, 1.0, actorID)
	}
	if inv, conf := weakMatch(t.Counterparty, amount, open); inv != nil {
		return true, s.recordMatch(ctx, t, inv, amount, models.MatchTypeWeak, conf, actorID)
	}
	return false, nil
}

// strongMatch looks for an invoice number inside the payment reference. Any
// recognizable token (full FA number, INV-42, FACTURE 42, a bare sequence)
// is normalized and compared against the open invoices' sequence numbers;
// the amount must agree within the tolerance.
func strongMatch(reference string, amount decimal.Decimal, open []models.Invoice) *models.Invoice {
	for _, re := range referencePatterns {
		m := re.FindStringSubmatch(reference)
		if m == nil {
			continue
		}
		token := m[len(m)-1]
		seq, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		// The full-number pattern also captures the year.
		year := 0
		if len(m) == 3 {
			year, _ = strconv.Atoi(m[1])
		}
		for i := range open {
			inv := &open[i]
			_, invYear, invSeq, ok := numbering.Parse(*inv.InvoiceNumber)
			if !ok || invSeq != seq {
				continue
			}
			if year != 0 && year != invYear {
				continue
			}
			if amount.Sub(inv.TotalTTC).Abs().LessThan(amountTolerance) {
				return inv
			}
		}
	}
	return nil
}

// weakMatch compares the transaction counterparty against each open
// invoice's client legal name, case-insensitively, using normalized
// Levenshtein similarity. The best candidate at or above the threshold
// wins; the amount must still agree within the tolerance.
func weakMatch(counterparty string, amount decimal.Decimal, open []models.Invoice) (*models.Invoice, float64) {
	name := normalizeName(counterparty)
	if name == "" {
		return nil, 0
	}
	var (
		best     *models.Invoice
		bestConf float64
	)
	for i := range open {
		inv := &open[i]
		if inv.Client == nil {
			continue
		}
		if amount.Sub(inv.TotalTTC).Abs().GreaterThanOrEqual(amountTolerance) {
			continue
		}
		conf := similarity(name, normalizeName(inv.Client.Nom))
		if conf >= weakMatchThreshold && conf > bestConf {
			best = inv
			bestConf = conf
		}
	}
	return best, bestConf
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// similarity is 1 minus the Levenshtein distance normalized by the longer
// string's rune length. Counterparty names frequently carry a legal form
// the client record omits ("ACME CORPORATION" vs "Acme Corp"), so the
// longer name truncated to the shorter one's length is scored too and the
// better of the two scores wins.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return 0
	}
	full := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(len(rb))
	if len(ra) == 0 {
		return full
	}
	short := string(ra)
	prefix := string(rb[:len(ra)])
	truncated := 1 - float64(levenshtein.ComputeDistance(short, prefix))/float64(len(ra))
	if truncated > full {
		return truncated
	}
	return full
}

// recordMatch persists the proposal and its audit entry. An invoice that
// already holds a confirmed payment is no longer a candidate.
func (s *MatchingService) recordMatch(ctx context.Context, t bank.Transaction, inv *models.Invoice, amount decimal.Decimal, mt models.MatchType, confidence float64, actorID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var confirmed int64
		if err := tx.Model(&models.InvoicePayment{}).
			Where("invoice_id = ? AND status = ?", inv.ID, models.PaymentStatusConfirmed).
			Count(&confirmed).Error; err != nil {
			return err
		}
		if confirmed > 0 {
			return fmt.Errorf("invoice %s already has a confirmed payment", *inv.InvoiceNumber)
		}
		p := models.InvoicePayment{
			InvoiceID:             inv.ID,
			ExternalTransactionID: t.ID,
			Amount:                amount,
			Currency:              t.Currency,
			Reference:             t.Reference,
			Counterparty:          t.Counterparty,
			MatchType:             mt,
			Confidence:            confidence,
			Status:                models.PaymentStatusMatched,
			SettledAt:             t.SettledAt,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BankTransaction{}).
			Where("external_id = ?", t.ID).
			Update("matched", true).Error; err != nil {
			return err
		}
		return writeAudit(tx, inv.ID, models.AuditActionPaymentMatched, actorID, map[string]any{
			"payment_id":              p.ID,
			"external_transaction_id": t.ID,
			"match_type":              mt,
			"confidence":              confidence,
			"amount":                  amount.String(),
		})
	})
}

// Confirm settles a proposed match: the payment becomes CONFIRMED and the
// invoice moves to PAID, or PARTIALLY_PAID when the amount falls short of
// the total. An invoice carries at most one confirmed payment; confirming
// against an already-settled invoice fails with ErrAlreadyConfirmed.
func (s *MatchingService) Confirm(ctx context.Context, paymentID uint, actorID uint) (*models.InvoicePayment, error) {
	var p models.InvoicePayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.Status == models.PaymentStatusConfirmed {
			return ErrAlreadyConfirmed
		}
		var confirmed int64
		if err := tx.Model(&models.InvoicePayment{}).
			Where("invoice_id = ? AND status = ?", p.InvoiceID, models.PaymentStatusConfirmed).
			Count(&confirmed).Error; err != nil {
			return err
		}
		if confirmed > 0 {
			return ErrAlreadyConfirmed
		}

		var inv models.Invoice
		if err := lockInvoice(tx, p.InvoiceID, &inv); err != nil {
			return err
		}
		target := models.StatusPaid
		if inv.TotalTTC.Sub(p.Amount).GreaterThanOrEqual(amountTolerance) {
			target = models.StatusPartiallyPaid
		}
		if !inv.Status.CanTransition(target) {
			return &InvalidStateTransitionError{Op: "confirm a payment on", Status: inv.Status}
		}

		now := s.now()
		p.Status = models.PaymentStatusConfirmed
		p.ConfirmedAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		inv.Status = target
		inv.PaidAt = &now
		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return writeAudit(tx, inv.ID, models.AuditActionPaymentConfirm, actorID, map[string]any{
			"payment_id": p.ID,
			"status":     target,
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Reject discards an unconfirmed proposal. The external transaction id is
// freed, so a later sync may rebind the transaction to another invoice.
func (s *MatchingService) Reject(ctx context.Context, paymentID uint, actorID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.InvoicePayment
		if err := tx.First(&p, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.Status == models.PaymentStatusConfirmed {
			return ErrAlreadyConfirmed
		}
		if err := tx.Delete(&p).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BankTransaction{}).
			Where("external_id = ?", p.ExternalTransactionID).
			Update("matched", false).Error; err != nil {
			return err
		}
		return writeAudit(tx, p.InvoiceID, models.AuditActionPaymentRejected, actorID, map[string]any{
			"payment_id":              p.ID,
			"external_transaction_id": p.ExternalTransactionID,
		})
	})
}

// Payments lists the proposals and confirmations recorded for one invoice.
func (s *MatchingService) Payments(ctx context.Context, invoiceID uint) ([]models.InvoicePayment, error) {
	var ps []models.InvoicePayment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&ps).Error
	return ps, err
}
