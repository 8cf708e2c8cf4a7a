package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/facturio/facturio/internal/httpx"
	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/services"
)

// InvoiceHandler exposes the invoice lifecycle over JSON.
type InvoiceHandler struct {
	lifecycle *services.LifecycleService
}

func NewInvoiceHandler(lifecycle *services.LifecycleService) *InvoiceHandler {
	return &InvoiceHandler{lifecycle: lifecycle}
}

// pathID extracts the {id} path value.
func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var extErr *services.ExternalServiceError
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrEmptyDocument):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "empty_document", err.Error())
	case errors.Is(err, services.ErrAlreadyConfirmed):
		httpx.JSONError(w, http.StatusConflict, "already_confirmed", err.Error())
	case services.IsInvalidTransition(err):
		httpx.JSONError(w, http.StatusConflict, "invalid_state_transition", err.Error())
	case errors.As(err, &extErr):
		httpx.JSONError(w, http.StatusBadGateway, "external_service_error", extErr.Error())
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// Create handles POST /api/invoices.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.DraftInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	inv, err := h.lifecycle.CreateDraft(r.Context(), in, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// List handles GET /api/invoices?status=&limit=&offset=.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	invs, total, err := h.lifecycle.List(r.Context(), models.InvoiceStatus(q.Get("status")), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices": invs,
		"total":    total,
	})
}

// Get handles GET /api/invoices/{id}.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Update handles PUT /api/invoices/{id}.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var in services.DraftInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	inv, err := h.lifecycle.UpdateDraft(r.Context(), id, in, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Validate handles POST /api/invoices/{id}/validate.
func (h *InvoiceHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.lifecycle.Validate(r.Context(), id, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Send handles POST /api/invoices/{id}/send.
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.lifecycle.Send(r.Context(), id, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Cancel handles POST /api/invoices/{id}/cancel.
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := httpx.Decode(r, &body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
	}
	inv, err := h.lifecycle.Cancel(r.Context(), id, body.Reason, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// CreditNote handles POST /api/invoices/{id}/credit-note.
func (h *InvoiceHandler) CreditNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var body struct {
		Items []services.ItemInput `json:"items"`
	}
	if r.ContentLength > 0 {
		if err := httpx.Decode(r, &body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
	}
	note, err := h.lifecycle.IssueCreditNote(r.Context(), id, body.Items, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

// AuditTrail handles GET /api/invoices/{id}/audit.
func (h *InvoiceHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if _, err := h.lifecycle.Get(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	trail, err := h.lifecycle.AuditTrail(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trail)
}

// actorID identifies the acting user for the audit trail. Single-operator
// deployments run without authentication; the X-Actor-ID header lets a
// fronting proxy attribute actions.
func actorID(r *http.Request) uint {
	id, err := strconv.ParseUint(r.Header.Get("X-Actor-ID"), 10, 32)
	if err != nil {
		return 1
	}
	return uint(id)
}
