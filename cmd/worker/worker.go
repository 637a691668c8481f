package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"AttendGate/config"
	"AttendGate/internal/cache"
	"AttendGate/internal/queue"
	"AttendGate/pkg/logger"
	"AttendGate/pkg/metrics"
	attotel "AttendGate/pkg/otel"
	"AttendGate/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(logger.Options{
		Level:       cfg.LoggerLevel,
		Format:      cfg.LoggerFormat,
		OutputPath:  cfg.LoggerOutputPath,
		Environment: cfg.Environment,
	})
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOTel, err := attotel.InitOpenTelemetry(ctx, attotel.Config{
		ServiceName:    cfg.ServiceName + "-worker",
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without export", zap.Error(err))
	}
	defer func() {
		if shutdownOTel == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	// worker 只需要 Redis 幂等标记和 MQ
	handles, err := storage.Open(ctx, cfg, storage.Components{Redis: true, MQ: true})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer handles.Close()

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
	)

	// 真实推送由外部通知服务负责，这里只记录
	h := queue.NewEventHandler(cache.NewMessageMarks(handles.Redis), queue.LogDeliverer{})
	if err := queue.StartNotificationConsumer(ctx, handles.MQ, h); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Notification consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
