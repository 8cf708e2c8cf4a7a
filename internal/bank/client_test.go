package bank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAllWalksPagination(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"transactions":[{"id":"tx-1","amount_cents":120000,"currency":"EUR","reference":"INV-042","counterparty_name":"ACME","settled_at":"2025-03-01T10:00:00Z"}],"meta":{"next_page":2}}`)
		case "2":
			fmt.Fprint(w, `{"transactions":[{"id":"tx-2","amount_cents":-5000,"currency":"EUR","reference":"frais","counterparty_name":"BANQUE","settled_at":"2025-03-02T10:00:00Z"}],"meta":{}}`)
		default:
			t.Errorf("unexpected page %q", page)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token")
	txs, err := c.FetchAll(context.Background(), nil, 50)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if !txs[0].Credit() {
		t.Error("tx-1 should be credit direction")
	}
	if txs[1].Credit() {
		t.Error("tx-2 is a debit and must not be credit")
	}
}

func TestFetchTransactionsErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	if _, err := c.FetchTransactions(context.Background(), nil, 1, 10); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestFetchTransactionsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"transactions": "not-an-array"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	if _, err := c.FetchTransactions(context.Background(), nil, 1, 10); err == nil {
		t.Fatal("expected error on malformed payload")
	}
}
