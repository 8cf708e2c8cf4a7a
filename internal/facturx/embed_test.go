package facturx

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/document"
	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/money"
)

func samplePDF(t *testing.T) []byte {
	t.Helper()
	qty := decimal.NewFromInt(2)
	price := decimal.NewFromInt(600)
	rate := decimal.NewFromInt(20)
	lt := money.ComputeLine(qty, price, rate)
	items := []models.InvoiceItem{{
		Description: "Prestation de conseil",
		Quantity:    qty, UnitPrice: price, VATRate: rate,
		TotalHT: lt.HT, TotalVAT: lt.VAT, TotalTTC: lt.TTC,
	}}
	in := document.Input{
		Number:       "FA-2025-0001",
		DocumentType: models.DocumentTypeInvoice,
		IssueDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Currency:     "EUR",
		Seller:       models.PartyRecord{Name: "Studio Amarante SAS", City: "Paris", Country: "France"},
		Buyer:        models.PartyRecord{Name: "Acme Corporation", City: "Berlin", Country: "Allemagne"},
		Items:        items,
		Totals:       money.Sum(items),
		VAT:          money.VATBreakdown(items),
	}
	pdf, err := document.RenderPDF(in)
	if err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	return pdf
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	pdf := samplePDF(t)
	xmlData := []byte(`<?xml version="1.0" encoding="UTF-8"?><rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"></rsm:CrossIndustryInvoice>`)

	out, err := Embed(pdf, xmlData, Meta{
		Title:        "Facture FA-2025-0001",
		Author:       "Studio Amarante SAS",
		Creator:      "facturio",
		Producer:     "facturio",
		DocumentType: "INVOICE",
	})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) <= len(pdf) {
		t.Fatal("embedded PDF should be larger than the source")
	}

	got, err := Extract(out)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, xmlData) {
		t.Fatalf("round trip not byte-identical:\n got: %q\nwant: %q", got, xmlData)
	}
}

func TestEmbedDeclaresConformance(t *testing.T) {
	pdf := samplePDF(t)
	out, err := Embed(pdf, []byte("<x/>"), Meta{Title: "t", Author: "a", DocumentType: "CREDIT_NOTE"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	// The XMP stream is written uncompressed, so the declarations are
	// greppable in the raw container.
	for _, want := range []string{
		"<pdfaid:part>3</pdfaid:part>",
		"<pdfaid:conformance>B</pdfaid:conformance>",
		"<fx:DocumentFileName>factur-x.xml</fx:DocumentFileName>",
		"<fx:Version>1.0</fx:Version>",
		"<fx:ConformanceLevel>EN 16931</fx:ConformanceLevel>",
		"<fx:DocumentType>CREDIT_NOTE</fx:DocumentType>",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("missing %q in embedded PDF", want)
		}
	}
}

func TestEmbedRejectsGarbageInput(t *testing.T) {
	_, err := Embed([]byte("not a pdf"), []byte("<x/>"), Meta{})
	if err == nil {
		t.Fatal("expected an error for non-PDF input")
	}
}

func TestExtractMissingAttachment(t *testing.T) {
	pdf := samplePDF(t)
	if _, err := Extract(pdf); err == nil {
		t.Fatal("expected an error when no attachment is present")
	}
}
