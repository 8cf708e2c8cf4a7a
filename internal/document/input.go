package document

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/money"
)

// Input is the frozen snapshot a document is rendered from. The lifecycle
// service assembles it once at validation; neither the PDF nor the XML side
// ever reads live database rows.
type Input struct {
	Number       string
	DocumentType models.DocumentType
	IssueDate    time.Time
	DueDate      time.Time
	Currency     string

	Seller models.PartyRecord
	Buyer  models.PartyRecord

	Items  []models.InvoiceItem
	Totals money.Totals
	VAT    []money.VATLine

	PaymentTermsDays  int
	PaymentTermsText  string
	LatePenaltyRate   decimal.Decimal
	EarlyDiscountText string
	Notes             string

	// RelatedInvoiceNumber is set on credit notes: the number of the
	// invoice being corrected.
	RelatedInvoiceNumber string

	MentionsLegales string
}

// TypeCode returns the UNTDID 1001 document type code: 380 for a commercial
// invoice, 381 for a credit note.
func (in Input) TypeCode() string {
	if in.DocumentType == models.DocumentTypeCreditNote {
		return "381"
	}
	return "380"
}

// Title is the human-readable document heading.
func (in Input) Title() string {
	if in.DocumentType == models.DocumentTypeCreditNote {
		return "AVOIR"
	}
	return "FACTURE"
}
