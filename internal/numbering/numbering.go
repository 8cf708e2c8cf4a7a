// Package numbering allocates sequential, gapless document numbers, scoped
// per document-type prefix and year: FA-2025-0001, AV-2025-0001, ...
//
// Numbers are permanent: once issued they are never reused or reclaimed,
// even if the invoice is later cancelled.
package numbering

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facturio/facturio/internal/models"
)

const (
	PrefixInvoice    = "FA"
	PrefixCreditNote = "AV"
)

var numberRe = regexp.MustCompile(`^(FA|AV)-(\d{4})-(\d{4,})$`)

// PrefixFor maps a document type to its numbering prefix.
func PrefixFor(dt models.DocumentType) string {
	if dt == models.DocumentTypeCreditNote {
		return PrefixCreditNote
	}
	return PrefixInvoice
}

// Format renders a document number. The sequence is zero-padded to 4 digits
// minimum and widens naturally past 9999.
func Format(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}

// Parse splits a document number into prefix, year and sequence.
func Parse(number string) (prefix string, year, seq int, ok bool) {
	m := numberRe.FindStringSubmatch(number)
	if m == nil {
		return "", 0, 0, false
	}
	year, _ = strconv.Atoi(m[2])
	seq, _ = strconv.Atoi(m[3])
	return m[1], year, seq, true
}

// Next allocates the next number for {docType, year} inside tx. The caller
// must run it in the same transaction that persists the invoice status
// change, so a failed validation never burns a number.
//
// The sequence row is locked FOR UPDATE on postgres; sqlite has no row
// locks but serializes writing transactions globally, which gives the same
// guarantee. First allocation for a {prefix, year} seeds from the greatest
// number already present on invoices, so the sequence survives a lost or
// reset sequence table.
func Next(tx *gorm.DB, docType models.DocumentType, year int) (string, error) {
	prefix := PrefixFor(docType)

	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var seq models.InvoiceSequence
	err := q.Where("prefix = ? AND year = ?", prefix, year).First(&seq).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		last, serr := lastIssued(tx, prefix, year)
		if serr != nil {
			return "", serr
		}
		seq = models.InvoiceSequence{Prefix: prefix, Year: year, LastValue: last + 1}
		// The unique index on (prefix, year) turns a concurrent first
		// allocation into a conflict; the caller's transaction fails and
		// retries rather than issuing a duplicate.
		if err := tx.Create(&seq).Error; err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		seq.LastValue++
		if err := tx.Model(&seq).Update("last_value", seq.LastValue).Error; err != nil {
			return "", err
		}
	}
	return Format(prefix, year, seq.LastValue), nil
}

// lastIssued scans invoices for the lexicographically greatest number under
// {prefix, year} and returns its numeric suffix, 0 when none exists.
func lastIssued(tx *gorm.DB, prefix string, year int) (int, error) {
	like := fmt.Sprintf("%s-%04d-%%", prefix, year)
	var numbers []string
	if err := tx.Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", like).
		Order("invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &numbers).Error; err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	_, _, seq, ok := Parse(numbers[0])
	if !ok {
		return 0, fmt.Errorf("malformed invoice number in store: %q", numbers[0])
	}
	return seq, nil
}
