package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/facturio/facturio/internal/bank"
	"github.com/facturio/facturio/internal/config"
	"github.com/facturio/facturio/internal/db"
	"github.com/facturio/facturio/internal/logger"
	"github.com/facturio/facturio/internal/services"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch settled bank transactions and match them against open invoices",
	Example: `  # Match everything the provider returns
  facturio sync

  # Only transactions settled since a date
  facturio sync --since 2025-03-01`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("since", "", "Only fetch transactions settled on or after this date (YYYY-MM-DD)")
}

func runSync(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sync")
	cfg := config.Load()

	client := buildBankClient(cfg)
	if client == nil {
		return errors.New("BANK_API_URL is not configured")
	}

	var since *time.Time
	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return err
		}
		since = &t
	}

	conn, err := db.ConnectAndMigrate()
	if err != nil {
		return err
	}

	matching := services.NewMatchingService(conn)
	report, err := matching.SyncFromProvider(cmd.Context(), client, since, 1)
	if err != nil {
		return err
	}
	log.Info().
		Int("fetched", report.Fetched).
		Int("matched", report.Matched).
		Int("unmatched", report.Unmatched).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Msg("sync finished")
	for _, e := range report.Errors {
		log.Warn().Str("transaction_id", e.TransactionID).Str("reason", e.Reason).Msg("transaction not matched")
	}
	return nil
}

// noSource stands in when no bank provider is configured.
type noSource struct{}

func (noSource) FetchAll(context.Context, *time.Time, int) ([]bank.Transaction, error) {
	return nil, errors.New("no bank provider configured")
}
