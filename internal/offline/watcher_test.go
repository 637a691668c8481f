package offline

import (
	"context"
	"sync"
	"testing"
)

type switchProber struct {
	mu     sync.Mutex
	online bool
}

func (p *switchProber) set(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

func (p *switchProber) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

type countingReconciler struct {
	mu    sync.Mutex
	calls int
}

func (r *countingReconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return ReconcileResult{Attempted: 1, Succeeded: 1}, nil
}

func (r *countingReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestWatcherReconcilesOnTransitionOnly(t *testing.T) {
	ctx := context.Background()
	prober := &switchProber{}
	rec := &countingReconciler{}
	w := NewWatcher(prober, rec)

	var results int
	w.OnResult = func(ReconcileResult, error) { results++ }

	steps := []struct {
		online bool
		want   int
	}{
		{false, 0},
		{true, 1},  // 离线 -> 在线
		{true, 1},  // 保持在线
		{false, 1}, // 断网
		{true, 2},  // 再次恢复
	}
	for i, s := range steps {
		prober.set(s.online)
		w.Probe(ctx)
		if got := rec.count(); got != s.want {
			t.Fatalf("step %d: expected %d reconciles, got %d", i, s.want, got)
		}
		if w.Online() != s.online {
			t.Fatalf("step %d: online = %v", i, w.Online())
		}
	}
	if results != 2 {
		t.Fatalf("expected OnResult twice, got %d", results)
	}
}

func TestWatcherTrigger(t *testing.T) {
	rec := &countingReconciler{}
	w := NewWatcher(&switchProber{}, rec)

	w.Trigger()
	w.Trigger()
	if rec.count() != 2 {
		t.Fatalf("manual trigger should always reconcile, got %d", rec.count())
	}
}

func TestWatcherInvalidSchedule(t *testing.T) {
	w := NewWatcher(&switchProber{}, &countingReconciler{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx, "not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := w.Start(ctx, "@every 1h"); err != nil {
		t.Fatal(err)
	}
}
