package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facturio/facturio/internal/bank"
	"github.com/facturio/facturio/internal/config"
	"github.com/facturio/facturio/internal/storage"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "facturio",
	Short: "Invoice lifecycle engine with Factur-X compliance",
	Long: `facturio issues, numbers and tracks invoices and credit notes,
produces Factur-X (PDF/A-3 + EN16931 XML) artifacts, and reconciles
incoming bank transactions against open invoices.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// buildUploader picks the document-storage backend from configuration.
func buildUploader(cfg config.Config) (storage.Uploader, error) {
	switch cfg.StorageDriver {
	case "s3":
		return storage.NewS3Uploader(storage.S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case "local":
		return storage.NewLocalUploader(cfg.StorageLocalDir), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// buildBankClient returns the transaction provider client, nil when no
// provider is configured.
func buildBankClient(cfg config.Config) *bank.Client {
	if cfg.BankAPIURL == "" {
		return nil
	}
	return bank.NewClient(cfg.BankAPIURL, cfg.BankAPIToken)
}
