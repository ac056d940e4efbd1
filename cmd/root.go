package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencamp/harvester/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Campground listing harvester",
	Long:  "Sweeps a configurable grid over the listing API, validates and enriches each campground with a reverse-geocoded address, and keeps the store current via full-replace upserts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
