package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DocumentType distinguishes invoices from credit notes. Both share the
// Invoice table and lifecycle; credit notes carry a back-reference to the
// invoice they correct and draw numbers from their own sequence.
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
)

// InvoiceStatus is the closed set of lifecycle states. Status is only ever
// changed through the lifecycle service's transition methods.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusValidated     InvoiceStatus = "VALIDATED"
	StatusSent          InvoiceStatus = "SENT"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// transitions lists the allowed status changes. Anything absent is illegal.
var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:     {StatusValidated},
	StatusValidated: {StatusSent, StatusCancelled, StatusPartiallyPaid, StatusPaid},
	StatusSent:      {StatusCancelled, StatusPartiallyPaid, StatusPaid},
}

// CanTransition reports whether moving from s to target is a legal
// lifecycle step.
func (s InvoiceStatus) CanTransition(target InvoiceStatus) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Editable reports whether invoice content (items, dates, terms) may still
// change. DRAFT is the only mutable state.
func (s InvoiceStatus) Editable() bool { return s == StatusDraft }

// Open reports whether the invoice is awaiting payment and therefore a
// candidate for bank-transaction matching.
func (s InvoiceStatus) Open() bool {
	return s == StatusValidated || s == StatusSent
}

// Invoice is the central billing document. Monetary totals are stored
// pre-rounded (2 decimals); they always equal the sum of the item totals.
type Invoice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DocumentType DocumentType  `gorm:"size:20;not null;default:'INVOICE';index" json:"document_type"`
	Status       InvoiceStatus `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`

	CompanyID uint            `gorm:"not null;index" json:"company_id"`
	Company   CompanySettings `gorm:"foreignKey:CompanyID" json:"-"`
	ClientID  uint            `gorm:"not null;index" json:"client_id"`
	Client    *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	// InvoiceNumber stays nil until validation assigns one; immutable after.
	InvoiceNumber *string `gorm:"size:20;uniqueIndex" json:"invoice_number,omitempty"`

	IssueDate time.Time `gorm:"not null" json:"issue_date"`
	DueDate   time.Time `gorm:"not null" json:"due_date"`
	Currency  string    `gorm:"size:3;not null;default:'EUR'" json:"currency"`

	TotalHT  decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_ht"`
	TotalVAT decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_vat"`
	TotalTTC decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_ttc"`

	PaymentTermsDays  int             `gorm:"default:30" json:"payment_terms_days"`
	PaymentTermsText  string          `gorm:"size:500" json:"payment_terms_text,omitempty"`
	LatePenaltyRate   decimal.Decimal `gorm:"type:numeric(5,2)" json:"late_penalty_rate"`
	EarlyDiscountText string          `gorm:"size:500" json:"early_discount_text,omitempty"`
	Notes             string          `gorm:"size:2000" json:"notes,omitempty"`

	// PDFURL points at the stored Factur-X artifact once validated.
	PDFURL string `gorm:"size:500" json:"pdf_url,omitempty"`

	// RelatedInvoiceID links a credit note to the invoice it corrects.
	RelatedInvoiceID *uint    `gorm:"index" json:"related_invoice_id,omitempty"`
	RelatedInvoice   *Invoice `gorm:"foreignKey:RelatedInvoiceID" json:"-"`

	// PartySnapshot freezes the issuer and client legal identities at
	// validation time so later edits to the live rows cannot alter an
	// already-issued document.
	PartySnapshot datatypes.JSON `json:"-"`

	CancelReason string     `gorm:"size:500" json:"cancel_reason,omitempty"`
	ValidatedAt  *time.Time `json:"validated_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
}

// InvoiceItem is one billed line. The three totals are computed once when
// the item set is written and never recomputed implicitly afterwards.
type InvoiceItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	InvoiceID uint `gorm:"not null;index" json:"invoice_id"`

	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"unit_price"`
	VATRate     decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"vat_rate"`

	TotalHT  decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_ht"`
	TotalVAT decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_vat"`
	TotalTTC decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_ttc"`
}

// PartySnapshot is the legal-identity snapshot serialized into
// Invoice.PartySnapshot at validation.
type PartySnapshot struct {
	Seller PartyRecord `json:"seller"`
	Buyer  PartyRecord `json:"buyer"`
}

// PartyRecord carries the fields a compliant document needs about one party.
type PartyRecord struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
	SIRET      string `json:"siret,omitempty"`
	VATNumber  string `json:"vat_number,omitempty"`
	IBAN       string `json:"iban,omitempty"`
	BIC        string `json:"bic,omitempty"`
}
