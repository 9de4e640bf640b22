package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect the submission attempt log",
}

// -- attempts list --

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attempts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outcome, _ := cmd.Flags().GetString("outcome")
		reason, _ := cmd.Flags().GetString("reason")
		site, _ := cmd.Flags().GetString("site")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AttemptFilter{
			Outcome: model.Outcome(outcome),
			Reason:  model.FailureReason(reason),
			SiteURL: site,
			Limit:   limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		attempts, err := st.ListAttempts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "attempts list")
		}
		if len(attempts) == 0 {
			fmt.Fprintln(os.Stderr, "No attempts found.")
			return nil
		}

		formatAttempts(os.Stdout, attempts)
		return nil
	},
}

// -- attempts show --

var attemptsShowCmd = &cobra.Command{
	Use:   "show <attempt-id>",
	Short: "Show full details of an attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.GetAttempt(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "attempts show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

// -- attempts prune --

var attemptsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete attempts older than a cutoff",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return eris.New("--older-than must be positive")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteAttemptsBefore(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "attempts prune")
		}
		fmt.Fprintf(os.Stdout, "Deleted %d attempts.\n", n)
		return nil
	},
}

func init() {
	attemptsListCmd.Flags().String("outcome", "", "filter by outcome (success, failed, indeterminate)")
	attemptsListCmd.Flags().String("reason", "", "filter by failure reason")
	attemptsListCmd.Flags().String("site", "", "filter by site URL")
	attemptsListCmd.Flags().Duration("since", 0, "only attempts started within this window")
	attemptsListCmd.Flags().Int("limit", 50, "max attempts to list")

	attemptsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete attempts started before now minus this")

	attemptsCmd.AddCommand(attemptsListCmd, attemptsShowCmd, attemptsPruneCmd)
	rootCmd.AddCommand(attemptsCmd)
}
