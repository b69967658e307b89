package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/normalize"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

var zipcodesCmd = &cobra.Command{
	Use:   "zipcodes <code>...",
	Short: "Resolve postal codes to centroids",
	Long:  "Looks up each postal code with the configured provider and reports its centroid and whether it falls inside the region.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		regionName, _ := cmd.Flags().GetString("region")
		provider, _ := cmd.Flags().GetString("provider")

		region, err := loadRegion(cfg, regionName)
		if err != nil {
			return err
		}
		lookup, err := newGeocoder(cfg, newFetcher(cfg), provider)
		if err != nil {
			return err
		}

		results, err := resolveZipcodes(ctx, lookup, cfg.Geocode.Country, region, args)
		if err != nil {
			return err
		}
		formatZipcodes(os.Stdout, results)
		return nil
	},
}

func init() {
	zipcodesCmd.Flags().String("region", "", "region preset name (default from config)")
	zipcodesCmd.Flags().String("provider", "", "postal lookup provider: geonames or geoapi (default from config)")
	rootCmd.AddCommand(zipcodesCmd)
}

// zipcodeResult is one row of the zipcodes report.
type zipcodeResult struct {
	Input    string
	Code     string // normalized; empty when malformed
	Centroid *geocode.Centroid
	InRegion bool
}

// resolveZipcodes normalizes the inputs and looks the valid ones up in one
// batch. Results keep the input order.
func resolveZipcodes(ctx context.Context, lookup geocode.Client, country string, region geo.Region, inputs []string) ([]zipcodeResult, error) {
	results := make([]zipcodeResult, len(inputs))
	var codes []string
	for i, in := range inputs {
		code := normalize.PostalCode(in)
		results[i] = zipcodeResult{Input: in, Code: code}
		if code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return results, nil
	}

	found, err := lookup.Lookup(ctx, country, codes)
	if err != nil {
		return nil, eris.Wrap(err, "zipcodes: lookup")
	}
	for i := range results {
		cen, ok := found[results[i].Code]
		if !ok {
			continue
		}
		results[i].Centroid = &cen
		results[i].InRegion = region.Contains(cen.Latitude, cen.Longitude)
	}
	return results, nil
}

// formatZipcodes writes the lookup report to w.
func formatZipcodes(out io.Writer, results []zipcodeResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tCODE\tLATITUDE\tLONGITUDE\tPLACES\tIN_REGION")
	_, _ = fmt.Fprintln(w, "-----\t----\t--------\t---------\t------\t---------")
	for _, r := range results {
		switch {
		case r.Code == "":
			_, _ = fmt.Fprintf(w, "%s\t(invalid)\t\t\t\t\n", r.Input)
		case r.Centroid == nil:
			_, _ = fmt.Fprintf(w, "%s\t%s\t(not found)\t\t\t\n", r.Input, r.Code)
		default:
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.6f\t%.6f\t%d\t%t\n",
				r.Input, r.Code, r.Centroid.Latitude, r.Centroid.Longitude, r.Centroid.Places, r.InRegion)
		}
	}
	_ = w.Flush()
}
