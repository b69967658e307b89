package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/config"
	"github.com/sells-group/listings-cli/internal/pipeline"
)

// exitInputUnavailable is the exit status when the raw input cannot be read.
const exitInputUnavailable = 2

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "listings-cli",
	Short:        "Real-estate listing cleaning pipeline",
	Long:         "Normalizes and deduplicates scraped apartment listings, fills missing coordinates from postal-code centroids, and serves the cleaned table to the map dashboard.",
	SilenceUsage: true,
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
		if errors.Is(err, pipeline.ErrInputUnavailable) {
			os.Exit(exitInputUnavailable)
		}
		os.Exit(1)
	}
}
