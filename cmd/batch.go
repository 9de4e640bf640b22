package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/sitelist"
)

var (
	batchMessage     string
	batchContext     string
	batchSheet       string
	batchConcurrency int
	batchLimit       int
	batchJSON        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <sites.csv|sites.xlsx>",
	Short: "Submit a message to every site in a CSV or XLSX list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sites, err := sitelist.Load(ctx, args[0], sitelist.Options{
			DefaultMessage: batchMessage,
			DefaultContext: batchContext,
			Sheet:          batchSheet,
		})
		if err != nil {
			return err
		}

		limit := batchLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		if limit > 0 && len(sites) > limit {
			sites = sites[:limit]
		}
		for i, s := range sites {
			if s.Message == "" {
				return eris.Errorf("batch: row %d (%s) has no message and --message is unset", i+1, s.URL)
			}
		}

		env, err := initEngine(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("batch: starting", zap.Int("sites", len(sites)), zap.Int("concurrency", batchConcurrency))
		attempts := env.Engine.SubmitBatch(ctx, sites, batchConcurrency)

		if batchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(attempts)
		}
		formatAttempts(os.Stdout, attempts)
		printSummary(os.Stdout, attempts)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchMessage, "message", "m", "", "message for rows without one")
	batchCmd.Flags().StringVar(&batchContext, "context", "", "business context for rows without one")
	batchCmd.Flags().StringVar(&batchSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "sites processed at once (default from config)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of sites to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print attempts as JSON")
	rootCmd.AddCommand(batchCmd)
}

// formatAttempts writes one row per attempt.
func formatAttempts(w io.Writer, attempts []model.SubmissionAttempt) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tOUTCOME\tMETHOD\tREASON\tELAPSED")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.SiteURL, a.Outcome, dash(string(a.MethodUsed)), dash(string(a.Reason)), a.Elapsed.Round(100*time.Millisecond))
	}
	_ = tw.Flush()
}

// printSummary writes outcome and failure-reason counts.
func printSummary(w io.Writer, attempts []model.SubmissionAttempt) {
	outcomes := map[model.Outcome]int{}
	reasons := map[model.FailureReason]int{}
	for _, a := range attempts {
		outcomes[a.Outcome]++
		if a.Reason != "" {
			reasons[a.Reason]++
		}
	}

	fmt.Fprintf(w, "\n%d sites: %d success, %d failed, %d indeterminate\n", len(attempts),
		outcomes[model.OutcomeSuccess], outcomes[model.OutcomeFailed], outcomes[model.OutcomeIndeterminate])
	for _, r := range slices.Sorted(maps.Keys(reasons)) {
		fmt.Fprintf(w, "  %-32s %d\n", r, reasons[r])
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
