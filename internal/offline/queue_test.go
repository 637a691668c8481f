package offline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
)

// fakeServer 模拟服务端：每个用户最多一条未签退记录
type fakeServer struct {
	mu       sync.Mutex
	open     map[string]bool
	down     bool
	calls    int
	started  chan struct{}
	block    chan struct{}
	received []model.Direction
}

func newFakeServer() *fakeServer {
	return &fakeServer{open: make(map[string]bool)}
}

func (s *fakeServer) Submit(ctx context.Context, attempt model.AttendanceAttempt) (admission.Outcome, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.down {
		return admission.Outcome{}, fmt.Errorf("%w: connection refused", ErrTransport)
	}
	s.received = append(s.received, attempt.Direction)

	switch attempt.Direction {
	case model.DirectionCheckIn:
		if s.open[attempt.UserID] {
			return admission.Reject(errors.AlreadyCheckedIn), nil
		}
		s.open[attempt.UserID] = true
	case model.DirectionCheckOut:
		if !s.open[attempt.UserID] {
			return admission.Reject(errors.NoActiveCheckin), nil
		}
		s.open[attempt.UserID] = false
	}
	return admission.Admit(admission.Admission{AttendanceID: fmt.Sprint(s.calls), Status: model.AttendanceStatusPresent}), nil
}

func newStore(t *testing.T) *GormStore {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "queue.db"))
}

func openStore(t *testing.T, path string) *GormStore {
	t.Helper()
	store, err := OpenGormStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func attemptOf(userID string, dir model.Direction) model.AttendanceAttempt {
	return model.AttendanceAttempt{
		UserID:    userID,
		Direction: dir,
		Embedding: make([]float64, model.EmbeddingDim),
		Location:  model.GeoPoint{Lat: 31.2304, Lng: 121.4737},
		Network:   model.NetworkInfo{SSID: "Office-5G"},
	}
}

// newQueue 使用递增的时钟，保证 created_at 有序
func newQueue(store Store, submitter Submitter) *Queue {
	q := NewQueue(store, submitter)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var n int
	q.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return q
}

func TestEnqueueAndList(t *testing.T) {
	ctx := context.Background()
	q := newQueue(newStore(t), newFakeServer())

	first, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if first.RetryCount != 0 || first.AttemptID == "" {
		t.Fatalf("unexpected queued item %+v", first)
	}
	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckOut)); err != nil {
		t.Fatal(err)
	}

	items, err := q.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(items))
	}
	if items[0].Direction != model.DirectionCheckIn || items[1].Direction != model.DirectionCheckOut {
		t.Fatalf("expected oldest first, got %s then %s", items[0].Direction, items[1].Direction)
	}

	attempt, err := items[0].Attempt()
	if err != nil {
		t.Fatal(err)
	}
	if attempt.UserID != "u-1" || len(attempt.Embedding) != model.EmbeddingDim || attempt.Network.SSID != "Office-5G" {
		t.Fatalf("payload not preserved: %+v", attempt)
	}
}

func TestListPendingTieBreaksOnInsertOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newStore(t), newFakeServer())
	fixed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	for _, dir := range []model.Direction{model.DirectionCheckIn, model.DirectionCheckOut, model.DirectionCheckIn} {
		if _, err := q.Enqueue(ctx, attemptOf("u-1", dir)); err != nil {
			t.Fatal(err)
		}
	}

	items, err := q.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Seq <= items[i-1].Seq {
			t.Fatalf("expected ascending seq, got %d after %d", items[i].Seq, items[i-1].Seq)
		}
	}
}

func TestListPendingIgnoresDeviceClock(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newStore(t), newFakeServer())
	// 第二条入队前设备时钟回拨了一小时
	clock := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	q.now = func() time.Time {
		now := clock[0]
		clock = clock[1:]
		return now
	}

	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckOut)); err != nil {
		t.Fatal(err)
	}

	items, err := q.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Direction != model.DirectionCheckIn || items[1].Direction != model.DirectionCheckOut {
		t.Fatalf("expected insertion order despite clock change, got %+v", items)
	}
}

func TestReconcileQueuedThenAdmitted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	q := newQueue(store, newFakeServer())

	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 1 || result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d", len(items))
	}
}

func TestReconcileDuplicateCheckInRejected(t *testing.T) {
	ctx := context.Background()
	q := newQueue(newStore(t), newFakeServer())

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 || result.Rejected != 1 {
		t.Fatalf("expected 1 admitted and 1 rejected, got %+v", result)
	}
	if len(result.Rejections) != 1 || result.Rejections[0].Reason.Code != errors.AlreadyCheckedIn.Code {
		t.Fatalf("expected ALREADY_CHECKED_IN, got %+v", result.Rejections)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 0 {
		t.Fatalf("rejected attempts should be dequeued, %d left", len(items))
	}
}

func TestReconcileReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	q := newQueue(newStore(t), server)
	var progressed int
	q.OnItem = func(*model.PendingAttempt) { progressed++ }

	for _, dir := range []model.Direction{model.DirectionCheckIn, model.DirectionCheckOut, model.DirectionCheckIn} {
		if _, err := q.Enqueue(ctx, attemptOf("u-1", dir)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 3 || progressed != 3 {
		t.Fatalf("in-order replay should admit all 3, got %+v (progress %d)", result, progressed)
	}
	want := []model.Direction{model.DirectionCheckIn, model.DirectionCheckOut, model.DirectionCheckIn}
	for i, dir := range want {
		if server.received[i] != dir {
			t.Fatalf("replay %d: expected %s, got %s", i, dir, server.received[i])
		}
	}
}

func TestReconcileTransportFailureKeepsItems(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	server.down = true
	q := newQueue(newStore(t), server)

	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	for pass := 1; pass <= 2; pass++ {
		result, err := q.Reconcile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if result.Failed != 1 || len(result.Errors) != 1 {
			t.Fatalf("pass %d: expected 1 failure, got %+v", pass, result)
		}

		items, _ := q.ListPending(ctx)
		if len(items) != 1 {
			t.Fatalf("pass %d: item should stay queued", pass)
		}
		if items[0].RetryCount != pass || items[0].LastError == "" {
			t.Fatalf("pass %d: expected retry_count=%d with last_error, got %d %q",
				pass, pass, items[0].RetryCount, items[0].LastError)
		}
	}

	server.down = false
	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected recovery, got %+v", result)
	}
}

func TestReconcileCorruptPayloadDoesNotStopPass(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	q := newQueue(store, newFakeServer())

	corrupt := &model.PendingAttempt{
		AttemptID: "corrupt",
		UserID:    "u-1",
		Direction: model.DirectionCheckIn,
		Payload:   []byte(`{"face_embedding":"oops"}`),
		CreatedAt: time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC),
	}
	if err := store.Append(ctx, corrupt); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, attemptOf("u-2", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 2 || result.Failed != 1 || result.Succeeded != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 1 || items[0].AttemptID != "corrupt" || items[0].RetryCount != 1 {
		t.Fatalf("corrupt item should remain with retry_count=1, got %+v", items)
	}
}

func TestReconcileSingleFlight(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	server.block = make(chan struct{})
	q := newQueue(newStore(t), server)

	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	done := make(chan ReconcileResult)
	go func() {
		result, _ := q.Reconcile(ctx)
		done <- result
	}()

	// 等待第一轮进入提交
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		running := q.running
		q.mu.Unlock()
		if running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first pass never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped || second.Attempted != 0 {
		t.Fatalf("overlapping pass should be skipped, got %+v", second)
	}

	close(server.block)
	first := <-done
	if first.Skipped || first.Succeeded != 1 {
		t.Fatalf("first pass should complete, got %+v", first)
	}
}

func TestReconcileSingleFlightAcrossQueues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")
	server := newFakeServer()
	server.started = make(chan struct{}, 1)
	server.block = make(chan struct{})

	daemon := newQueue(openStore(t, path), server)
	daemon.UseDeviceLock(LockPath(path))
	manual := newQueue(openStore(t, path), server)
	manual.UseDeviceLock(LockPath(path))

	if _, err := daemon.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	done := make(chan ReconcileResult)
	go func() {
		result, _ := daemon.Reconcile(ctx)
		done <- result
	}()

	select {
	case <-server.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never submitted")
	}

	second, err := manual.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped || second.Attempted != 0 {
		t.Fatalf("pass from another queue on the same file should be skipped, got %+v", second)
	}

	close(server.block)
	first := <-done
	if first.Skipped || first.Succeeded != 1 {
		t.Fatalf("first pass should complete, got %+v", first)
	}
	if server.calls != 1 {
		t.Fatalf("one queued attempt must be submitted once, got %d", server.calls)
	}

	// 锁已释放，下一轮可以执行
	third, err := manual.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if third.Skipped {
		t.Fatalf("lock should be released after the pass, got %+v", third)
	}
}

// flakyStore 指定 seq 的出队失败，pingErr 非空时模拟存储不可达
type flakyStore struct {
	*GormStore
	failDelete int64
	pingErr    error
}

func (s *flakyStore) Delete(ctx context.Context, seq int64) error {
	if seq == s.failDelete {
		return fmt.Errorf("failed to dequeue attempt %d: disk I/O error", seq)
	}
	return s.GormStore.Delete(ctx, seq)
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.GormStore.Ping(ctx)
}

func TestReconcileStoreWriteFailureContinues(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{GormStore: newStore(t)}
	server := newFakeServer()
	q := newQueue(store, server)

	first, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, attemptOf("u-2", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}
	store.failDelete = first.Seq

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatalf("one bad row must not stop the pass: %v", err)
	}
	if result.Attempted != 2 || result.Succeeded != 2 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if server.calls != 2 {
		t.Fatalf("expected both attempts submitted, got %d", server.calls)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 1 || items[0].Seq != first.Seq {
		t.Fatalf("only the row that failed to dequeue should remain, got %+v", items)
	}
}

func TestReconcileStopsWhenStoreUnreachable(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{GormStore: newStore(t)}
	server := newFakeServer()
	q := newQueue(store, server)

	first, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, attemptOf("u-2", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}
	store.failDelete = first.Seq
	store.pingErr = fmt.Errorf("database is closed")

	result, err := q.Reconcile(ctx)
	if err == nil {
		t.Fatal("expected error when the queue store is unreachable")
	}
	if result.Attempted != 1 || server.calls != 1 {
		t.Fatalf("pass should stop after the first item, got %+v (calls %d)", result, server.calls)
	}
}

func TestReconcileStopsWhenCancelled(t *testing.T) {
	store := newStore(t)
	q := newQueue(store, newFakeServer())

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(context.Background(), attemptOf(fmt.Sprintf("u-%d", i), model.DirectionCheckIn)); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Reconcile(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}

	items, _ := q.ListPending(context.Background())
	if len(items) != 3 {
		t.Fatalf("unprocessed items must stay queued, got %d", len(items))
	}
}

func TestSubmitOrEnqueue(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	q := newQueue(newStore(t), server)

	outcome, queued, err := q.SubmitOrEnqueue(ctx, attemptOf("u-1", model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if queued != nil || !outcome.IsAdmitted() {
		t.Fatalf("online submission should be admitted directly, got %+v queued=%v", outcome, queued)
	}

	outcome, queued, err = q.SubmitOrEnqueue(ctx, attemptOf("u-1", model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if queued != nil || outcome.Reason.Code != errors.AlreadyCheckedIn.Code {
		t.Fatalf("rejection must not be queued, got %+v queued=%v", outcome, queued)
	}

	server.down = true
	_, queued, err = q.SubmitOrEnqueue(ctx, attemptOf("u-1", model.DirectionCheckOut))
	if err != nil {
		t.Fatal(err)
	}
	if queued == nil || queued.Direction != model.DirectionCheckOut {
		t.Fatalf("transport failure should queue the attempt, got %+v", queued)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(items))
	}
}

type rejectingSubmitter struct {
	reason errors.Definition
}

func (s rejectingSubmitter) Submit(ctx context.Context, attempt model.AttendanceAttempt) (admission.Outcome, error) {
	return admission.Reject(s.reason), nil
}

func TestReconcileRejectedIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	q := newQueue(store, rejectingSubmitter{reason: errors.FaceMismatch})

	if _, err := q.Enqueue(ctx, attemptOf("u-1", model.DirectionCheckIn)); err != nil {
		t.Fatal(err)
	}

	result, err := q.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Rejected != 1 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Rejections[0].Reason.Code != errors.FaceMismatch.Code {
		t.Fatalf("expected FACE_MISMATCH, got %s", result.Rejections[0].Reason.Code)
	}

	items, _ := q.ListPending(ctx)
	if len(items) != 0 {
		t.Fatalf("rejected attempt should be dequeued, %d left", len(items))
	}
}
