package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"AttendGate/pkg/logger"
)

// Prober 连通性探测
type Prober interface {
	Online(ctx context.Context) bool
}

// Reconciler 由 Queue 实现
type Reconciler interface {
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

// Watcher 按计划探测连通性，离线转为在线时触发补交
type Watcher struct {
	prober     Prober
	reconciler Reconciler
	cron       *cron.Cron
	ctx        context.Context

	mu     sync.Mutex
	online bool
	// OnResult 每轮补交后回调，可为空
	OnResult func(ReconcileResult, error)
}

// NewWatcher 初始状态视为离线，首次探测成功即触发一轮
func NewWatcher(prober Prober, reconciler Reconciler) *Watcher {
	return &Watcher{
		prober:     prober,
		reconciler: reconciler,
		ctx:        context.Background(),
	}
}

// Start 按 cron 表达式（支持 "@every 30s"）启动探测，ctx 结束时停止
func (w *Watcher) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { w.Probe(ctx) }); err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}

	w.mu.Lock()
	w.cron = c
	w.ctx = ctx
	w.mu.Unlock()

	c.Start()
	logger.Logger.Info("Connectivity watcher started", zap.String("schedule", schedule))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Logger.Info("Connectivity watcher stopped")
	}()
	return nil
}

// Probe 执行一次探测，仅在离线到在线的跳变时补交
func (w *Watcher) Probe(ctx context.Context) {
	online := w.prober.Online(ctx)

	w.mu.Lock()
	wasOnline := w.online
	w.online = online
	w.mu.Unlock()

	if online == wasOnline {
		return
	}
	logger.Logger.Info("Connectivity changed", zap.Bool("online", online))
	if online {
		w.run(ctx)
	}
}

// Trigger 手动触发一轮补交
func (w *Watcher) Trigger() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	result, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		logger.Logger.Error("Reconcile failed", zap.Error(err))
	}
	if w.OnResult != nil {
		w.OnResult(result, err)
	}
}

// Online 最近一次探测结果
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}
