package money

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestComputeLineRounding(t *testing.T) {
	cases := []struct {
		qty, price, rate string
		ht, vat, ttc     string
	}{
		{"1", "100", "20", "100", "20", "120"},
		{"3", "19.99", "20", "59.97", "11.99", "71.96"},      // 11.994 rounds down
		{"7", "0.07", "20", "0.49", "0.1", "0.59"},           // 0.098 rounds up
		{"1.5", "33.335", "5.5", "50", "2.75", "52.75"},      // 50.0025 -> 50.00
		{"2", "12.345", "10", "24.69", "2.47", "27.16"},      // half-up on 2.469
		{"1", "0.005", "20", "0.01", "0", "0.01"},            // half-up at the edge
		{"0", "99.99", "20", "0", "0", "0"},
	}
	for _, c := range cases {
		lt := ComputeLine(dec(t, c.qty), dec(t, c.price), dec(t, c.rate))
		if !lt.HT.Equal(dec(t, c.ht)) || !lt.VAT.Equal(dec(t, c.vat)) || !lt.TTC.Equal(dec(t, c.ttc)) {
			t.Errorf("ComputeLine(%s,%s,%s) = %s/%s/%s want %s/%s/%s",
				c.qty, c.price, c.rate, lt.HT, lt.VAT, lt.TTC, c.ht, c.vat, c.ttc)
		}
		if !lt.HT.Add(lt.VAT).Equal(lt.TTC) {
			t.Errorf("HT+VAT != TTC for qty=%s price=%s rate=%s", c.qty, c.price, c.rate)
		}
	}
}

func items(t *testing.T) []models.InvoiceItem {
	t.Helper()
	mk := func(qty, price, rate string) models.InvoiceItem {
		lt := ComputeLine(dec(t, qty), dec(t, price), dec(t, rate))
		return models.InvoiceItem{
			Quantity: dec(t, qty), UnitPrice: dec(t, price), VATRate: dec(t, rate),
			TotalHT: lt.HT, TotalVAT: lt.VAT, TotalTTC: lt.TTC,
		}
	}
	return []models.InvoiceItem{
		mk("3", "19.99", "20"),
		mk("2", "45.50", "20"),
		mk("1", "120", "5.5"),
		mk("4", "7.25", "5.5"),
	}
}

func TestSumNoDrift(t *testing.T) {
	its := items(t)
	tot := Sum(its)
	if !tot.HT.Add(tot.VAT).Equal(tot.TTC) {
		t.Fatalf("document drift: %s + %s != %s", tot.HT, tot.VAT, tot.TTC)
	}
	// The document total must be the literal sum of displayed line totals.
	want := decimal.Zero
	for _, it := range its {
		want = want.Add(it.TotalTTC)
	}
	if !tot.TTC.Equal(want) {
		t.Fatalf("TTC = %s, want sum of line TTC %s", tot.TTC, want)
	}
}

func TestVATBreakdownGroupsByRate(t *testing.T) {
	bd := VATBreakdown(items(t))
	if len(bd) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(bd))
	}
	if !bd[0].Rate.Equal(dec(t, "5.5")) || !bd[1].Rate.Equal(dec(t, "20")) {
		t.Fatalf("rates not sorted ascending: %s, %s", bd[0].Rate, bd[1].Rate)
	}
	// Basis/amount are sums of stored item totals for that rate.
	if !bd[1].Basis.Equal(dec(t, "150.97")) { // 59.97 + 91.00
		t.Errorf("20%% basis = %s, want 150.97", bd[1].Basis)
	}
	if !bd[1].Amount.Equal(dec(t, "30.19")) { // 11.99 + 18.20
		t.Errorf("20%% amount = %s, want 30.19", bd[1].Amount)
	}
	if !bd[0].Basis.Equal(dec(t, "149")) { // 120.00 + 29.00
		t.Errorf("5.5%% basis = %s, want 149", bd[0].Basis)
	}
	if !bd[0].Amount.Equal(dec(t, "8.2")) { // 6.60 + 1.60 (1.595 rounds up)
		t.Errorf("5.5%% amount = %s, want 8.2", bd[0].Amount)
	}
	// Breakdown must reconcile with the document totals.
	tot := Sum(items(t))
	sumVAT := decimal.Zero
	for _, l := range bd {
		sumVAT = sumVAT.Add(l.Amount)
	}
	if !sumVAT.Equal(tot.VAT) {
		t.Fatalf("breakdown VAT %s != document VAT %s", sumVAT, tot.VAT)
	}
}
