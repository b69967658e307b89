package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/store"
)

// maxSourceWidth caps the SOURCE column in display cells.
const maxSourceWidth = 40

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored pipeline runs",
	Long:  "Commands for listing and viewing the snapshots written by the clean command.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Source: source, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the stats of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().String("source", "", "filter by input source")
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// requireStore opens the store and fails when snapshots are disabled.
func requireStore(cmd *cobra.Command) (store.Store, error) {
	st, err := initStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store driver is none: no runs are recorded (set LISTINGS_STORE_DRIVER)")
	}
	return st, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tREGION\tACCEPTED\tREJECTED\tWITH_COORDS\tSOURCE")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t--------\t--------\t-----------\t------")

	for _, r := range runs {
		source := runewidth.Truncate(r.Source, maxSourceWidth, "...")

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			truncateID(r.ID),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Region,
			r.Stats.Accepted,
			formatRejected(r.Stats.Rejected),
			r.Stats.WithCoordinates,
			source,
		)
	}
	_ = w.Flush()
}

// formatRejected renders rejection counts as "reason=n" pairs in reason order.
func formatRejected(rejected map[string]int) string {
	if len(rejected) == 0 {
		return "0"
	}
	reasons := make([]string, 0, len(rejected))
	for reason := range rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", reason, rejected[reason])
	}
	return strings.Join(parts, ",")
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
