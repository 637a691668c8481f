package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"AttendGate/internal/offline"
	"AttendGate/pkg/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Probe connectivity on a schedule and reconcile when the server comes back",
	RunE: func(cmd *cobra.Command, args []string) error {
		prober, err := offline.NewHTTPProber(cfg.ServerURL, cfg.RequestTimeout)
		if err != nil {
			return err
		}

		w := offline.NewWatcher(prober, queue)
		w.OnResult = func(result offline.ReconcileResult, err error) {
			if result.Attempted > 0 {
				printResult(cmd, result)
			}
		}
		if err := w.Start(cmd.Context(), cfg.ProbeSchedule); err != nil {
			return err
		}

		// 启动时先探测一次
		w.Probe(cmd.Context())

		<-cmd.Context().Done()
		logger.Logger.Info("Agent watch stopped", zap.Bool("online", w.Online()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func printResult(cmd *cobra.Command, result offline.ReconcileResult) {
	out := cmd.OutOrStdout()
	if result.Skipped {
		fmt.Fprintln(out, "Another reconcile pass is running, skipped.")
		return
	}
	fmt.Fprintf(out, "Attempted %d: %d admitted, %d rejected, %d will retry\n",
		result.Attempted, result.Succeeded, result.Rejected, result.Failed)
	for _, r := range result.Rejections {
		fmt.Fprintf(out, "  %s %s rejected: %s (%s)\n", r.AttemptID, r.Direction, r.Reason.Message, r.Reason.Code)
	}
	if result.Failed > 0 {
		fmt.Fprintln(out, "  Some attempts could not reach the server and stay queued.")
	}
}
