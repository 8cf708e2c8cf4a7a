// Package money holds the monetary arithmetic for invoices.
//
// All amounts are shopspring decimals, never binary floats. Rounding mode is
// round-half-up (decimal.Round, half away from zero; amounts here are
// non-negative so the two coincide), applied once per line total. Document
// totals are sums of already-rounded line totals, so the grand total always
// equals what the printed lines add up to.
package money

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/models"
)

var hundred = decimal.NewFromInt(100)

// LineTotals is the result of pricing one invoice line.
type LineTotals struct {
	HT  decimal.Decimal
	VAT decimal.Decimal
	TTC decimal.Decimal
}

// ComputeLine prices one line: HT = qty × unitPrice, VAT = HT × rate/100,
// TTC = HT + VAT, each rounded to 2 decimals independently. TTC is the sum
// of the two rounded parts, so HT + VAT == TTC holds to the cent.
func ComputeLine(quantity, unitPrice, vatRate decimal.Decimal) LineTotals {
	ht := quantity.Mul(unitPrice).Round(2)
	vat := ht.Mul(vatRate).Div(hundred).Round(2)
	return LineTotals{HT: ht, VAT: vat, TTC: ht.Add(vat)}
}

// Totals are document-level sums of the stored, already-rounded item totals.
type Totals struct {
	HT  decimal.Decimal
	VAT decimal.Decimal
	TTC decimal.Decimal
}

// Sum adds up item totals. It never re-derives VAT from the rates: doing so
// would let the grand total drift from the displayed line totals.
func Sum(items []models.InvoiceItem) Totals {
	t := Totals{HT: decimal.Zero, VAT: decimal.Zero, TTC: decimal.Zero}
	for _, it := range items {
		t.HT = t.HT.Add(it.TotalHT)
		t.VAT = t.VAT.Add(it.TotalVAT)
		t.TTC = t.TTC.Add(it.TotalTTC)
	}
	return t
}

// VATLine is one row of the per-rate VAT disclosure.
type VATLine struct {
	Rate   decimal.Decimal
	Basis  decimal.Decimal // sum of the matching items' HT totals
	Amount decimal.Decimal // sum of the matching items' VAT totals
}

// VATBreakdown groups item totals by distinct VAT rate, ascending. Basis and
// amount come from the stored item totals, not from rate × basis.
func VATBreakdown(items []models.InvoiceItem) []VATLine {
	byRate := map[string]*VATLine{}
	for _, it := range items {
		key := it.VATRate.String()
		line, ok := byRate[key]
		if !ok {
			line = &VATLine{Rate: it.VATRate, Basis: decimal.Zero, Amount: decimal.Zero}
			byRate[key] = line
		}
		line.Basis = line.Basis.Add(it.TotalHT)
		line.Amount = line.Amount.Add(it.TotalVAT)
	}
	out := make([]VATLine, 0, len(byRate))
	for _, line := range byRate {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rate.LessThan(out[j].Rate) })
	return out
}
