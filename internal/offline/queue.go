package offline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/logger"
)

// ErrTransport 服务端不可达或返回了非业务结果，可重试
var ErrTransport = stderrors.New("attendance server unreachable")

// Submitter 把一次打卡提交给准入引擎
type Submitter interface {
	Submit(ctx context.Context, attempt model.AttendanceAttempt) (admission.Outcome, error)
}

// Rejection 被服务端确定性拒绝、已出队的打卡，需要展示给用户
type Rejection struct {
	Reason    errors.Definition
	AttemptID string
	Direction model.Direction
}

// ReconcileResult 一轮补交的汇总
type ReconcileResult struct {
	Errors     []string
	Rejections []Rejection
	Attempted  int
	Succeeded  int
	Rejected   int
	Failed     int
	// Skipped 已有一轮在进行，本次未执行
	Skipped bool
}

// Queue 离线打卡队列
type Queue struct {
	store     Store
	submitter Submitter
	now       func() time.Time

	mu      sync.Mutex
	running bool

	// deviceLock 跨进程互斥，watch 守护进程与手动补交共用同一把锁
	deviceLock *flock.Flock

	// OnItem 每处理完一条回调，用于展示进度，可为空
	OnItem func(item *model.PendingAttempt)
}

func NewQueue(store Store, submitter Submitter) *Queue {
	return &Queue{
		store:     store,
		submitter: submitter,
		now:       time.Now,
	}
}

// LockPath 队列文件对应的设备锁文件
func LockPath(queuePath string) string {
	return queuePath + ".lock"
}

// UseDeviceLock 补交时额外持有 path 上的文件锁，同一设备上的其他进程拿不到锁即跳过
func (q *Queue) UseDeviceLock(path string) {
	q.deviceLock = flock.New(path)
}

// Enqueue 持久化一次无法送达的打卡，retry_count 从 0 开始
func (q *Queue) Enqueue(ctx context.Context, attempt model.AttendanceAttempt) (*model.PendingAttempt, error) {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attempt: %w", err)
	}

	item := &model.PendingAttempt{
		AttemptID: uuid.NewString(),
		UserID:    attempt.UserID,
		Direction: attempt.Direction,
		Payload:   payload,
		CreatedAt: q.now().UTC(),
	}
	if err := q.store.Append(ctx, item); err != nil {
		return nil, err
	}

	logger.Logger.Info("Attempt queued for later submission",
		zap.String("attempt_id", item.AttemptID),
		zap.String("user_id", item.UserID),
		zap.String("direction", string(item.Direction)),
	)
	return item, nil
}

// SubmitOrEnqueue 在线优先提交，传输失败时入队，返回的 queued 非空表示已入队
func (q *Queue) SubmitOrEnqueue(ctx context.Context, attempt model.AttendanceAttempt) (admission.Outcome, *model.PendingAttempt, error) {
	outcome, err := q.submitter.Submit(ctx, attempt)
	if err == nil {
		return outcome, nil, nil
	}
	if !stderrors.Is(err, ErrTransport) {
		return admission.Outcome{}, nil, err
	}

	logger.Logger.Warn("Server unreachable, queueing attempt", zap.Error(err))
	item, err := q.Enqueue(ctx, attempt)
	if err != nil {
		return admission.Outcome{}, nil, err
	}
	return admission.Outcome{}, item, nil
}

// ListPending 最早的在前
func (q *Queue) ListPending(ctx context.Context) ([]model.PendingAttempt, error) {
	return q.store.ListPending(ctx)
}

// Reconcile 按入队顺序逐条补交
//
// 准入成功或被拒绝的条目出队，传输失败的保留并累加 retry_count。
// 同一设备同一时刻只允许一轮，并发调用直接返回 Skipped。
// ctx 取消后在条目之间停止，已开始的提交会执行完毕。
// 单条出队或记重试失败只记入 Errors，队列存储不可达时整轮终止。
func (q *Queue) Reconcile(ctx context.Context) (ReconcileResult, error) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		logger.Logger.Info("Reconcile already running, skipping")
		return ReconcileResult{Skipped: true}, nil
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	if q.deviceLock != nil {
		locked, err := q.deviceLock.TryLock()
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("failed to lock queue %s: %w", q.deviceLock.Path(), err)
		}
		if !locked {
			logger.Logger.Info("Reconcile running in another process, skipping",
				zap.String("lock", q.deviceLock.Path()),
			)
			return ReconcileResult{Skipped: true}, nil
		}
		defer func() {
			if err := q.deviceLock.Unlock(); err != nil {
				logger.Logger.Warn("Failed to release queue lock", zap.Error(err))
			}
		}()
	}

	var result ReconcileResult
	items, err := q.store.ListPending(ctx)
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		return result, nil
	}

	startTime := time.Now()
	logger.Logger.Info("Starting reconcile", zap.Int("pending", len(items)))

	for i := range items {
		if err := ctx.Err(); err != nil {
			logger.Logger.Info("Reconcile abandoned",
				zap.Int("processed", result.Attempted),
				zap.Int("remaining", len(items)-i),
			)
			return result, err
		}

		if err := q.reconcileOne(context.WithoutCancel(ctx), &items[i], &result); err != nil {
			result.Errors = append(result.Errors, err.Error())
			logger.Logger.Error("Failed to update queued attempt",
				zap.String("attempt_id", items[i].AttemptID),
				zap.Error(err),
			)
			if perr := q.store.Ping(context.WithoutCancel(ctx)); perr != nil {
				return result, fmt.Errorf("queue store unreachable: %w", perr)
			}
		}
		if q.OnItem != nil {
			q.OnItem(&items[i])
		}
	}

	logger.Logger.Info("Reconcile finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(startTime)),
	)
	return result, nil
}

// reconcileOne 只有本地存储写失败才返回 error
func (q *Queue) reconcileOne(ctx context.Context, item *model.PendingAttempt, result *ReconcileResult) error {
	result.Attempted++

	attempt, err := item.Attempt()
	if err != nil {
		logger.Logger.Error("Corrupt queued attempt, keeping it",
			zap.String("attempt_id", item.AttemptID),
			zap.Error(err),
		)
		return q.fail(ctx, item, err, result)
	}

	outcome, err := q.submitter.Submit(ctx, attempt)
	if err != nil {
		logger.Logger.Warn("Submission failed, will retry",
			zap.String("attempt_id", item.AttemptID),
			zap.Int("retry_count", item.RetryCount+1),
			zap.Error(err),
		)
		return q.fail(ctx, item, err, result)
	}

	if outcome.IsAdmitted() {
		result.Succeeded++
	} else {
		result.Rejected++
		result.Rejections = append(result.Rejections, Rejection{
			AttemptID: item.AttemptID,
			Direction: item.Direction,
			Reason:    outcome.Reason,
		})
		logger.Logger.Info("Queued attempt rejected",
			zap.String("attempt_id", item.AttemptID),
			zap.String("reason", outcome.Reason.Code),
		)
	}

	return q.store.Delete(ctx, item.Seq)
}

func (q *Queue) fail(ctx context.Context, item *model.PendingAttempt, cause error, result *ReconcileResult) error {
	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.AttemptID, cause))
	return q.store.MarkFailed(ctx, item.Seq, cause.Error())
}
