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
	"AttendGate/internal/cache"
	"AttendGate/internal/repository"
	"AttendGate/internal/service"
	"AttendGate/pkg/logger"
	"AttendGate/storage"
)

var (
	cfg     *config.Config
	handles *storage.Handles
	office  *service.OfficeConfigService
)

var rootCmd = &cobra.Command{
	Use:   "attendgate-admin",
	Short: "Operator tooling for AttendGate",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.Init(logger.Options{
			Level:       cfg.LoggerLevel,
			Format:      cfg.LoggerFormat,
			OutputPath:  "stderr",
			Environment: cfg.Environment,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		handles.Close()
		logger.Sync()
	},
}

// openOffice 需要数据库的子命令调用，Redis 不可用时不使用缓存
func openOffice(ctx context.Context) error {
	var err error
	handles, err = storage.Open(ctx, cfg, storage.Components{DB: true})
	if err != nil {
		return err
	}

	var officeCache service.OfficeConfigCache
	if rh, err := storage.Open(ctx, cfg, storage.Components{Redis: true}); err != nil {
		logger.Logger.Warn("Redis unavailable, office cache will not be invalidated", zap.Error(err))
	} else {
		handles.Redis = rh.Redis
		officeCache = cache.NewOfficeConfigCache(rh.Redis, cfg.OfficeCacheTTL)
	}

	office = service.NewOfficeConfigService(repository.NewOfficeSettingRepository(handles.DB), officeCache)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
