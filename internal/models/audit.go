package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit action codes, one per lifecycle transition or matching event.
const (
	AuditActionCreated         = "invoice.created"
	AuditActionUpdated         = "invoice.updated"
	AuditActionValidated       = "invoice.validated"
	AuditActionSent            = "invoice.sent"
	AuditActionCancelled       = "invoice.cancelled"
	AuditActionCreditNote      = "invoice.credit_note_issued"
	AuditActionPaymentMatched  = "payment.matched"
	AuditActionPaymentConfirm  = "payment.confirmed"
	AuditActionPaymentRejected = "payment.rejected"
)

// InvoiceAuditLog is append-only: rows are inserted, never updated or
// deleted.
type InvoiceAuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint           `gorm:"not null;index" json:"invoice_id"`
	Action    string         `gorm:"size:50;not null" json:"action"`
	ActorID   uint           `json:"actor_id"`
	Details   datatypes.JSON `json:"details,omitempty"`
}
