package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/facturio/facturio/internal/bank"
	"github.com/facturio/facturio/internal/db"
	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/storage"
)

type fakeBank struct {
	txs []bank.Transaction
}

func (f *fakeBank) FetchAll(context.Context, *time.Time, int) ([]bank.Transaction, error) {
	return f.txs, nil
}

func setupApp(t *testing.T) (*App, *gorm.DB, *fakeBank) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	for _, m := range db.Models() {
		if err := conn.AutoMigrate(m); err != nil {
			t.Fatalf("migrate %T: %v", m, err)
		}
	}
	company := models.CompanySettings{RaisonSociale: "Atelier SARL", SIRET: "12345678900012", TVAIntra: "FR32123456789", Address: "10 rue de la Paix", PostalCode: "75002", City: "Paris", Country: "France", IBAN: "FR7630006000011234567890189"}
	if err := conn.Create(&company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	client := models.Client{Nom: "Acme Corp", Address: "1 avenue des Champs", PostalCode: "69001", City: "Lyon", Country: "France"}
	if err := conn.Create(&client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	fb := &fakeBank{}
	return NewApp(conn, storage.NewMemoryUploader(), fb), conn, fb
}

func doJSON(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decodeInvoice(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func draftPayload() map[string]any {
	return map[string]any{
		"company_id": 1,
		"client_id":  1,
		"items": []map[string]any{
			{"description": "Développement", "quantity": "10", "unit_price": "100", "vat_rate": "20"},
		},
	}
}

func TestHealthz(t *testing.T) {
	app, _, _ := setupApp(t)
	rec := doJSON(t, app, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	app, _, _ := setupApp(t)

	rec := doJSON(t, app, http.MethodPost, "/api/invoices", draftPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeInvoice(t, rec)
	id := int(created["id"].(float64))
	if created["status"] != "DRAFT" {
		t.Fatalf("status = %v", created["status"])
	}

	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/invoices/%d/validate", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d: %s", rec.Code, rec.Body.String())
	}
	validated := decodeInvoice(t, rec)
	if validated["invoice_number"] == nil {
		t.Fatal("no invoice number after validation")
	}

	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/invoices/%d/send", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d", rec.Code)
	}

	// Editing after validation is a conflict.
	rec = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/invoices/%d", id), draftPayload())
	if rec.Code != http.StatusConflict {
		t.Fatalf("update sent invoice status = %d", rec.Code)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil || errResp.Error != "invalid_state_transition" {
		t.Fatalf("error = %q (%v)", errResp.Error, err)
	}

	rec = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/invoices/%d/audit", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}
}

func TestValidateEmptyDraftIsUnprocessable(t *testing.T) {
	app, _, _ := setupApp(t)
	payload := draftPayload()
	payload["items"] = []map[string]any{}
	rec := doJSON(t, app, http.MethodPost, "/api/invoices", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	id := int(decodeInvoice(t, rec)["id"].(float64))
	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/invoices/%d/validate", id), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validate empty status = %d", rec.Code)
	}
}

func TestGetMissingInvoiceIs404(t *testing.T) {
	app, _, _ := setupApp(t)
	rec := doJSON(t, app, http.MethodGet, "/api/invoices/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPaymentSyncAndConfirmOverHTTP(t *testing.T) {
	app, _, fb := setupApp(t)

	rec := doJSON(t, app, http.MethodPost, "/api/invoices", draftPayload())
	id := int(decodeInvoice(t, rec)["id"].(float64))
	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/invoices/%d/validate", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d: %s", rec.Code, rec.Body.String())
	}

	fb.txs = []bank.Transaction{{
		ID:           "tx-1",
		AmountCents:  120000, // 10 × 100 + 20% VAT
		Currency:     "EUR",
		Reference:    "INV-001",
		Counterparty: "Acme Corp",
		SettledAt:    time.Now(),
	}}
	rec = doJSON(t, app, http.MethodPost, "/api/payments/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Matched int `json:"matched"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil || report.Matched != 1 {
		t.Fatalf("report = %s (%v)", rec.Body.String(), err)
	}

	rec = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/invoices/%d/payments", id), nil)
	var payments []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payments); err != nil || len(payments) != 1 {
		t.Fatalf("payments = %s (%v)", rec.Body.String(), err)
	}

	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/payments/%d/confirm", payments[0].ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/invoices/%d", id), nil)
	if got := decodeInvoice(t, rec)["status"]; got != "PAID" {
		t.Fatalf("invoice status = %v", got)
	}

	// Re-confirming is a conflict.
	rec = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/payments/%d/confirm", payments[0].ID), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reconfirm status = %d", rec.Code)
	}
}
