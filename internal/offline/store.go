package offline

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"AttendGate/internal/model"
)

// Store 设备本地的持久化队列存储
type Store interface {
	Append(ctx context.Context, item *model.PendingAttempt) error
	ListPending(ctx context.Context) ([]model.PendingAttempt, error)
	Delete(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, lastErr string) error
	Ping(ctx context.Context) error
}

// GormStore 基于 sqlite 文件的队列存储
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore 打开（必要时创建）队列数据库，进程退出前须调用 Close
func OpenGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database %s: %w", path, err)
	}

	// sqlite 单写者
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := NewGormStore(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewGormStore 在已有连接上建表
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&model.PendingAttempt{}); err != nil {
		return nil, fmt.Errorf("failed to migrate pending_attempts: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, item *model.PendingAttempt) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to enqueue attempt %s: %w", item.AttemptID, err)
	}
	return nil
}

// ListPending 按自增 seq，即插入顺序，设备时钟回拨不影响顺序
func (s *GormStore) ListPending(ctx context.Context) ([]model.PendingAttempt, error) {
	var items []model.PendingAttempt
	err := s.db.WithContext(ctx).
		Order("seq ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending attempts: %w", err)
	}
	return items, nil
}

func (s *GormStore) Delete(ctx context.Context, seq int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.PendingAttempt{}, seq).Error; err != nil {
		return fmt.Errorf("failed to dequeue attempt %d: %w", seq, err)
	}
	return nil
}

func (s *GormStore) MarkFailed(ctx context.Context, seq int64, lastErr string) error {
	err := s.db.WithContext(ctx).
		Model(&model.PendingAttempt{}).
		Where("seq = ?", seq).
		UpdateColumns(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastErr,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record retry for attempt %d: %w", seq, err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
