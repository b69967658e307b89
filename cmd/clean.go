package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/monitoring"
	"github.com/sells-group/listings-cli/internal/pipeline"
)

// inputUnavailableMessage is the only failure text shown for an unreadable
// scrape.
const inputUnavailableMessage = "input missing or corrupt"

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean a raw scrape into the listing table",
	Long:  "Normalizes, deduplicates and geocodes the raw scrape, then writes the cleaned table (CSV, XLSX or JSON by extension) and snapshots it in the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if input == "" {
			input = cfg.Input.Source
		}
		if output == "" {
			output = cfg.Output.Path
		}

		var o envOptions
		o.Region, _ = cmd.Flags().GetString("region")
		o.Provider, _ = cmd.Flags().GetString("provider")
		o.NoStore, _ = cmd.Flags().GetBool("no-store")
		o.NoGeocode, _ = cmd.Flags().GetBool("no-geocode")

		env, err := initPipeline(ctx, cfg, o)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, input, output)
		if err != nil {
			if errors.Is(err, pipeline.ErrInputUnavailable) {
				zap.L().Error("clean: input unavailable", zap.String("input", input), zap.Error(err))
				fmt.Fprintln(os.Stderr, inputUnavailableMessage)
				cmd.SilenceErrors = true
			}
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerter.SendAlerts(ctx, alerter.Evaluate(input, result.Stats))

		formatCleanSummary(os.Stdout, output, result)
		return nil
	},
}

func init() {
	cleanCmd.Flags().String("input", "", "raw scrape path or URL (default from config)")
	cleanCmd.Flags().String("output", "", "output table path, .csv/.xlsx/.json (default from config)")
	cleanCmd.Flags().String("region", "", "region preset name (default from config)")
	cleanCmd.Flags().String("provider", "", "postal lookup provider: geonames or geoapi (default from config)")
	cleanCmd.Flags().Bool("no-store", false, "skip the store snapshot")
	cleanCmd.Flags().Bool("no-geocode", false, "keep only scraped coordinates")
	rootCmd.AddCommand(cleanCmd)
}

// formatCleanSummary writes the run counters to w.
func formatCleanSummary(out io.Writer, output string, r *pipeline.Result) {
	s := r.Stats
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Raw records:\t%d\n", s.Raw)
	_, _ = fmt.Fprintf(w, "Accepted:\t%d\n", s.Accepted)

	reasons := make([]string, 0, len(s.Rejected))
	for reason := range s.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		_, _ = fmt.Fprintf(w, "  Rejected %s:\t%d\n", reason, s.Rejected[reason])
	}

	_, _ = fmt.Fprintf(w, "Duplicates:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "Geocoded:\t%d\n", s.Geocoded)
	_, _ = fmt.Fprintf(w, "Out of region:\t%d\n", s.OutOfRegion)
	_, _ = fmt.Fprintf(w, "Jittered:\t%d\n", s.Jittered)
	_, _ = fmt.Fprintf(w, "With coordinates:\t%d\n", s.WithCoordinates)
	if output != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", output)
	}
	if r.Run != nil {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.Run.ID)
	}
	_ = w.Flush()
}
