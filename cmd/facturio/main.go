package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/facturio/facturio/internal/config"
	"github.com/facturio/facturio/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
