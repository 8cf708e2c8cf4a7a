package main

import (
	"github.com/spf13/cobra"

	"github.com/facturio/facturio/internal/config"
	"github.com/facturio/facturio/internal/db"
	"github.com/facturio/facturio/internal/logger"
	"github.com/facturio/facturio/internal/server"
	"github.com/facturio/facturio/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	cfg := config.Load()

	conn, err := db.ConnectAndMigrate()
	if err != nil {
		log.Error().Err(err).Msg("database setup failed")
		return err
	}

	uploader, err := buildUploader(cfg)
	if err != nil {
		return err
	}

	var source services.TransactionSource
	if c := buildBankClient(cfg); c != nil {
		source = c
	} else {
		log.Warn().Msg("no bank provider configured, payment sync disabled")
		source = noSource{}
	}

	app := server.NewApp(conn, uploader, source)
	return server.Run(":"+cfg.Port, app)
}
