package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks a matched bank transaction from proposal to
// confirmation.
type PaymentStatus string

const (
	PaymentStatusMatched   PaymentStatus = "MATCHED"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
)

// MatchType records which rule bound the transaction to the invoice.
type MatchType string

const (
	MatchTypeStrong MatchType = "STRONG" // invoice number found in reference, exact amount
	MatchTypeWeak   MatchType = "WEAK"   // fuzzy counterparty name, exact amount
)

// InvoicePayment binds one external bank transaction to one invoice.
// ExternalTransactionID is the idempotency key: a transaction is matched at
// most once, ever. At most one CONFIRMED payment may exist per invoice.
type InvoicePayment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceID uint     `gorm:"not null;index" json:"invoice_id"`
	Invoice   *Invoice `gorm:"foreignKey:InvoiceID" json:"-"`

	ExternalTransactionID string `gorm:"size:100;not null;uniqueIndex" json:"external_transaction_id"`

	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`
	Reference    string          `gorm:"size:500" json:"reference,omitempty"`
	Counterparty string          `gorm:"size:255" json:"counterparty,omitempty"`

	MatchType  MatchType     `gorm:"size:10;not null" json:"match_type"`
	Confidence float64       `gorm:"not null" json:"confidence"`
	Status     PaymentStatus `gorm:"size:20;not null;default:'MATCHED'" json:"status"`

	SettledAt   time.Time  `json:"settled_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
