package admission

import (
	"context"
	"time"

	"AttendGate/internal/model"
)

// ProfileStore 读取人脸模板，不存在时返回 repository.ErrProfileNotFound
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.EnrolledProfile, error)
}

// RecordStore 考勤记录存储
//
// FindOpen 在没有未签退记录时返回 repository.ErrNoOpenRecord；
// CreateCheckIn 在违反"每人一条未签退记录"时返回 repository.ErrOpenRecordExists；
// CompleteCheckOut 只更新仍未签退的记录，否则返回 repository.ErrNoOpenRecord。
type RecordStore interface {
	FindOpen(ctx context.Context, userID string) (*model.AttendanceRecord, error)
	CreateCheckIn(ctx context.Context, rec *model.AttendanceRecord) error
	CompleteCheckOut(ctx context.Context, rec *model.AttendanceRecord) error
}

// OfficeConfigSource 服务端权威的办公室配置
type OfficeConfigSource interface {
	Current(ctx context.Context) (*model.OfficeConfig, error)
}

// Event 准入成功事件
type Event struct {
	OccurredAt   time.Time
	Type         string
	UserID       string
	AttendanceID string
	Status       model.AttendanceStatus
}

// Notifier 外部通知服务，尽力而为
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Locker 按用户串行化准入，返回的 unlock 可重复调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NextID() (int64, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) error { return nil }
