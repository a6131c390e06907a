package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show conversion results for an experiment",
	Long: `Show per-variant assignment totals, conversion counts and rates.

Examples:
  splitlab results 1
  splitlab results 1 --event-type signup --last-day 7`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

var (
	resultsEventType string
	resultsLastDay   int
	resultsStartDate string
)

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.Flags().StringVarP(&resultsEventType, "event-type", "t", "purchase", "Conversion event type")
	resultsCmd.Flags().IntVar(&resultsLastDay, "last-day", 0, "Only count events from the last N days")
	resultsCmd.Flags().StringVar(&resultsStartDate, "start-date", "", "Only count events from this RFC 3339 time")
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	experimentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid experiment id: %s", args[0])
	}

	var since *time.Time
	if resultsLastDay > 0 {
		t := time.Now().UTC().AddDate(0, 0, -resultsLastDay)
		since = &t
	} else if resultsStartDate != "" {
		t, err := time.Parse(time.RFC3339, resultsStartDate)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", resultsStartDate, err)
		}
		since = &t
	}

	app, err := NewAppContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	summary, err := app.Results.Summarize(ctx, experimentID, resultsEventType, since)
	if err != nil {
		return err
	}

	fmt.Printf("Experiment %q (id %d), event type %q\n",
		summary.ExperimentName, summary.ExperimentID, resultsEventType)

	names := make([]string, 0, len(summary.Variants))
	for name := range summary.Variants {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tASSIGNMENTS\tCONVERSIONS\tRATE")
	for _, name := range names {
		r := summary.Variants[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", name, r.TotalAssignments, r.ConversionCount, r.ConversionRate)
	}
	return w.Flush()
}
