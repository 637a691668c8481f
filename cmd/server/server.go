package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"AttendGate/config"
	"AttendGate/internal/admission"
	"AttendGate/internal/cache"
	"AttendGate/internal/handler"
	"AttendGate/internal/middleware"
	"AttendGate/internal/queue"
	"AttendGate/internal/repository"
	"AttendGate/internal/router"
	"AttendGate/internal/service"
	"AttendGate/pkg/logger"
	"AttendGate/pkg/metrics"
	attotel "AttendGate/pkg/otel"
	"AttendGate/pkg/snowflake"
	"AttendGate/pkg/token"
	"AttendGate/storage"
	"AttendGate/storage/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 日志部分
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
		ServiceName:    cfg.ServiceName,
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
		if err := shutdownOTel(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize admission metrics", zap.Error(err))
	}
	if err := middleware.InitMetrics(otel.Meter(cfg.ServiceName)); err != nil {
		logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	handles, err := storage.Open(ctx, cfg, storage.Components{DB: true, Redis: true, MQ: true})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer handles.Close()

	if err := database.Migrate(handles.DB); err != nil {
		logger.Logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(token.Settings{
		Secret:        cfg.JWTSecret,
		ExpireMinutes: cfg.JWTExpireMinutes,
		RefreshDays:   cfg.JWTRefreshDays,
	}); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	// 初始化中间件
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	hd := buildHandlers(cfg, handles)

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
		zap.String("lock_backend", cfg.LockBackend),
	)

	tracer, tracing := middleware.NewServerTracerConfig()
	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	h := server.Default(server.WithHostPorts(addr), tracer)

	var limiter app.HandlerFunc
	if cfg.RateLimitEnabled {
		limiter = middleware.RateLimitMiddleware(handles.Redis, middleware.AttendanceRateLimitConfig(
			cfg.AttendanceRateMax,
			time.Duration(cfg.AttendanceRateSecs)*time.Second,
		))
	}

	router.Register(h.Engine, hd, router.Options{
		Tracing:     tracing,
		RateLimiter: limiter,
		Production:  cfg.IsProduction(),
	})

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}

// buildHandlers 组装准入引擎与各服务
func buildHandlers(cfg *config.Config, handles *storage.Handles) *handler.Handlers {
	profiles := repository.NewProfileRepository(handles.DB)
	records := repository.NewAttendanceRepository(handles.DB)
	settings := repository.NewOfficeSettingRepository(handles.DB)

	office := service.NewOfficeConfigService(settings, cache.NewOfficeConfigCache(handles.Redis, cfg.OfficeCacheTTL))

	var locker admission.Locker
	switch cfg.LockBackend {
	case "redis":
		locker = cache.NewRedisLocker(handles.Redis, cfg.LockTTL, cfg.LockWait)
	default:
		locker = admission.NewKeyedMutex()
	}

	engine := admission.NewEngine(admission.Deps{
		Profiles: profiles,
		Records:  records,
		Office:   office,
		Notifier: queue.NewPublisher(handles.MQ, snowflake.Generator{}),
		Locker:   locker,
		IDs:      snowflake.Generator{},
	}, admission.Options{
		Location:       cfg.Location(),
		Threshold:      cfg.FaceMatchThreshold,
		FullDayMinutes: cfg.FullDayMinutes,
		NotifyTimeout:  cfg.NotifyTimeout,
	})

	return &handler.Handlers{
		Engine:     engine,
		Attendance: service.NewAttendanceQueryService(records),
		Enrollment: service.NewEnrollmentService(profiles),
		Office:     office,
	}
}
