package numbering

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/facturio/facturio/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// One connection so concurrent transactions serialize instead of
	// tripping sqlite's write lock.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Invoice{}, &models.InvoiceItem{}, &models.InvoiceSequence{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestFormatAndParse(t *testing.T) {
	n := Format(PrefixInvoice, 2025, 42)
	if n != "FA-2025-0042" {
		t.Fatalf("Format = %q", n)
	}
	prefix, year, seq, ok := Parse(n)
	if !ok || prefix != "FA" || year != 2025 || seq != 42 {
		t.Fatalf("Parse(%q) = %q %d %d %v", n, prefix, year, seq, ok)
	}
	if _, _, _, ok := Parse("FA-2025-1"); ok {
		t.Fatal("short sequence must not parse")
	}
	if _, _, _, ok := Parse("XX-2025-0001"); ok {
		t.Fatal("unknown prefix must not parse")
	}
	// Sequences widen past 9999 without truncation.
	if got := Format(PrefixCreditNote, 2025, 12345); got != "AV-2025-12345" {
		t.Fatalf("wide Format = %q", got)
	}
}

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	db := setupDB(t)
	for i := 1; i <= 3; i++ {
		var got string
		err := db.Transaction(func(tx *gorm.DB) error {
			n, err := Next(tx, models.DocumentTypeInvoice, 2025)
			got = n
			return err
		})
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if want := Format(PrefixInvoice, 2025, i); got != want {
			t.Fatalf("allocation %d = %q, want %q", i, got, want)
		}
	}
	// Credit notes draw from an independent sequence.
	var av string
	_ = db.Transaction(func(tx *gorm.DB) error {
		n, err := Next(tx, models.DocumentTypeCreditNote, 2025)
		av = n
		return err
	})
	if av != "AV-2025-0001" {
		t.Fatalf("credit note sequence = %q", av)
	}
}

func TestNextSeedsFromExistingInvoices(t *testing.T) {
	db := setupDB(t)
	num := "FA-2025-0107"
	if err := db.Create(&models.Invoice{Status: models.StatusValidated, CompanyID: 1, ClientID: 1, InvoiceNumber: &num}).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	var got string
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := Next(tx, models.DocumentTypeInvoice, 2025)
		got = n
		return err
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "FA-2025-0108" {
		t.Fatalf("seeded allocation = %q, want FA-2025-0108", got)
	}
}

func TestNextConcurrentAllocationsAreGapless(t *testing.T) {
	db := setupDB(t)
	const n = 25
	var (
		mu      sync.Mutex
		results []string
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				num, err := Next(tx, models.DocumentTypeInvoice, 2025)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, num)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("transaction: %v", err)
			}
		}()
	}
	wg.Wait()
	if len(results) != n {
		t.Fatalf("got %d allocations, want %d", len(results), n)
	}
	sort.Strings(results)
	seen := map[string]bool{}
	for i, num := range results {
		if seen[num] {
			t.Fatalf("duplicate number %q", num)
		}
		seen[num] = true
		if want := Format(PrefixInvoice, 2025, i+1); num != want {
			t.Fatalf("gap detected: position %d is %q, want %q", i, num, want)
		}
	}
}
