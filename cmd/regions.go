package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/internal/geo"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List region presets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		presets, err := geo.Presets(cfg.Region.PresetsFile)
		if err != nil {
			return err
		}
		formatRegions(os.Stdout, presets, cfg.Region.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

// formatRegions writes presets sorted by name, marking the active one.
func formatRegions(out io.Writer, presets map[string]geo.Region, active string) {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tMIN_LAT\tMAX_LAT\tMIN_LON\tMAX_LON\t")
	for _, name := range names {
		r := presets[name]
		marker := ""
		if name == active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%g\t%s\n", name, r.MinLat, r.MaxLat, r.MinLon, r.MaxLon, marker)
	}
	_ = w.Flush()
}
