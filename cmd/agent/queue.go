package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"AttendGate/internal/model"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := queue.ListPending(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending attempts.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ATTEMPT\tUSER\tTYPE\tQUEUED\tRETRIES\tLAST ERROR")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				it.AttemptID, it.UserID, it.Direction,
				it.CreatedAt.Local().Format("2006-01-02 15:04:05"), it.RetryCount, it.LastError)
		}
		return w.Flush()
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Replay queued attempts against the server now",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := queue.ListPending(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending attempts.")
			return nil
		}

		bar := progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription("Reconciling"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		queue.OnItem = func(*model.PendingAttempt) { _ = bar.Add(1) }

		result, err := queue.Reconcile(cmd.Context())
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)

		printResult(cmd, result)
		return err
	},
}

func init() {
	queueCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(queueCmd)
}
