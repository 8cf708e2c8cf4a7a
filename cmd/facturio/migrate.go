package main

import (
	"github.com/spf13/cobra"

	"github.com/facturio/facturio/internal/db"
	"github.com/facturio/facturio/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("migrate")
		if _, err := db.ConnectAndMigrate(); err != nil {
			return err
		}
		log.Info().Msg("migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
