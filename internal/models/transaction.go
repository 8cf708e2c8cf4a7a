package models

import "time"

// BankTransaction is the raw ingest ledger: every transaction the provider
// returned, matched or not. Rows are written once per external id; Matched
// flips when a payment proposal binds the transaction.
type BankTransaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID   string    `gorm:"size:100;not null;uniqueIndex" json:"external_id"`
	AmountCents  int64     `gorm:"not null" json:"amount_cents"`
	Currency     string    `gorm:"size:3;not null" json:"currency"`
	Reference    string    `gorm:"size:500" json:"reference,omitempty"`
	Counterparty string    `gorm:"size:255" json:"counterparty,omitempty"`
	SettledAt    time.Time `json:"settled_at"`

	Matched bool `gorm:"not null;default:false;index" json:"matched"`
}
