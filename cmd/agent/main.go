package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"AttendGate/config"
	"AttendGate/internal/offline"
	"AttendGate/pkg/logger"
)

// agent 进程级句柄，PersistentPreRunE 打开，PersistentPostRun 关闭
var (
	cfg   *config.AgentConfig
	store *offline.GormStore
	queue *offline.Queue

	queuePath string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "attendgate-agent",
	Short: "Device-side attendance capture and offline queue",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadAgent()
		if err != nil {
			return err
		}
		if queuePath != "" {
			cfg.QueuePath = queuePath
		}
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}

		logger.Init(logger.Options{
			Level:      cfg.LoggerLevel,
			Format:     cfg.LoggerFormat,
			OutputPath: "stderr",
		})

		store, err = offline.OpenGormStore(cfg.QueuePath)
		if err != nil {
			return err
		}

		submitter, err := offline.NewHTTPSubmitter(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)
		if err != nil {
			return err
		}
		queue = offline.NewQueue(store, submitter)
		// watch 与手动 reconcile 是不同进程，靠文件锁保证同一设备只跑一轮
		queue.UseDeviceLock(offline.LockPath(cfg.QueuePath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Logger.Error("Failed to close queue database", zap.Error(err))
			}
		}
		logger.Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&queuePath, "queue", "", "queue database path (default: $AGENT_QUEUE_PATH)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "attendance server base URL (default: $AGENT_SERVER_URL)")
}
