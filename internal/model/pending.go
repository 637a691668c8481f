package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// PendingAttempt 设备本地离线队列中的一条待提交打卡
type PendingAttempt struct {
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	AttemptID  string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"attempt_id"`
	UserID     string         `gorm:"type:varchar(64);not null" json:"user_id"`
	Direction  Direction      `gorm:"type:varchar(16);not null" json:"direction"`
	LastError  string         `gorm:"type:text" json:"last_error,omitempty"`
	Payload    datatypes.JSON `gorm:"not null" json:"-"`
	Seq        int64          `gorm:"primaryKey;autoIncrement" json:"seq"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
}

// TableName 指定表名
func (PendingAttempt) TableName() string {
	return "pending_attempts"
}

// Attempt 解码队列中保存的原始请求
func (p *PendingAttempt) Attempt() (AttendanceAttempt, error) {
	var attempt AttendanceAttempt
	if err := json.Unmarshal(p.Payload, &attempt); err != nil {
		return AttendanceAttempt{}, fmt.Errorf("failed to decode pending attempt %s: %w", p.AttemptID, err)
	}
	return attempt, nil
}
