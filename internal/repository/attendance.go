package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"AttendGate/internal/model"
)

// AttendanceRepository 考勤记录存储，记录只增改不删
type AttendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindOpen 查询用户未签退的记录，没有时返回 ErrNoOpenRecord
func (r *AttendanceRepository) FindOpen(ctx context.Context, userID string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND check_out_time IS NULL", userID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open attendance record: %w", err)
	}
	return &rec, nil
}

// CreateCheckIn 写入签到记录，唯一索引冲突时返回 ErrOpenRecordExists
func (r *AttendanceRepository) CreateCheckIn(ctx context.Context, rec *model.AttendanceRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if isUniqueViolation(err) {
		return ErrOpenRecordExists
	}
	if err != nil {
		return fmt.Errorf("failed to create attendance record: %w", err)
	}
	return nil
}

// CompleteCheckOut 填充签退字段，仅在记录仍未签退时生效
func (r *AttendanceRepository) CompleteCheckOut(ctx context.Context, rec *model.AttendanceRecord) error {
	result := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("id = ? AND check_out_time IS NULL", rec.ID).
		Updates(map[string]interface{}{
			"check_out_time": rec.CheckOutTime,
			"total_minutes":  rec.TotalMinutes,
			"status":         rec.Status,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete check-out: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoOpenRecord
	}
	return nil
}

// ListHistory 按时间倒序分页，beforeID 为 0 表示第一页
func (r *AttendanceRepository) ListHistory(ctx context.Context, userID string, beforeID int64, limit int) ([]model.AttendanceRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var records []model.AttendanceRecord
	if err := q.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance history: %w", err)
	}
	return records, nil
}

// CountOpen 统计用户未签退记录数
func (r *AttendanceRepository) CountOpen(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("user_id = ? AND check_out_time IS NULL", userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open attendance records: %w", err)
	}
	return n, nil
}
