package handlers

import (
	"net/http"
	"time"

	"github.com/facturio/facturio/internal/httpx"
	"github.com/facturio/facturio/internal/services"
)

// PaymentHandler exposes payment matching and confirmation over JSON.
type PaymentHandler struct {
	matching *services.MatchingService
	source   services.TransactionSource
}

func NewPaymentHandler(matching *services.MatchingService, source services.TransactionSource) *PaymentHandler {
	return &PaymentHandler{matching: matching, source: source}
}

// Sync handles POST /api/payments/sync?since=RFC3339. It pulls settled
// transactions from the bank provider and runs the matcher.
func (h *PaymentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_since", err.Error())
			return
		}
		since = &t
	}
	report, err := h.matching.SyncFromProvider(r.Context(), h.source, since, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// ListForInvoice handles GET /api/invoices/{id}/payments.
func (h *PaymentHandler) ListForInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	ps, err := h.matching.Payments(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ps)
}

// Confirm handles POST /api/payments/{id}/confirm.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	p, err := h.matching.Confirm(r.Context(), id, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Reject handles POST /api/payments/{id}/reject.
func (h *PaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.matching.Reject(r.Context(), id, actorID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
