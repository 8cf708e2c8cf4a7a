package services

import (
	"errors"
	"fmt"

	"github.com/facturio/facturio/internal/models"
)

// Sentinel errors for the simple failure modes.
var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyDocument    = errors.New("invoice has no items")
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
)

// InvalidStateTransitionError is returned when a lifecycle precondition is
// violated. Hint carries the actionable part of the message, e.g. telling
// the caller to issue a credit note instead of cancelling a paid invoice.
type InvalidStateTransitionError struct {
	Op     string
	Status models.InvoiceStatus
	Hint   string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s an invoice in status %s", e.Op, e.Status)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// IsInvalidTransition reports whether err is a lifecycle precondition
// failure.
func IsInvalidTransition(err error) bool {
	var t *InvalidStateTransitionError
	return errors.As(err, &t)
}

// ExternalServiceError wraps a failure from a collaborator (bank API,
// document storage).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
