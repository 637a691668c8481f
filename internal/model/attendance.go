package model

import (
	"time"

	"gorm.io/datatypes"
)

// Direction 打卡方向
type Direction string

const (
	DirectionCheckIn  Direction = "check_in"
	DirectionCheckOut Direction = "check_out"
)

// AttendanceStatus 考勤状态枚举
type AttendanceStatus string

const (
	AttendanceStatusPresent  AttendanceStatus = "present"
	AttendanceStatusLate     AttendanceStatus = "late"
	AttendanceStatusAbsent   AttendanceStatus = "absent"
	AttendanceStatusEarlyOut AttendanceStatus = "early_out"
)

// FullDayMinutes 不足该时长的签退记为早退
const FullDayMinutes = 480

type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type NetworkInfo struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// AttendanceAttempt 一次打卡请求，准入引擎的输入，离线队列原样保存
type AttendanceAttempt struct {
	ClientTimestamp *time.Time  `json:"client_timestamp,omitempty"`
	UserID          string      `json:"user_id" validate:"required,max=64"`
	Direction       Direction   `json:"type" validate:"required,oneof=check_in check_out"`
	Network         NetworkInfo `json:"wifi_info"`
	Embedding       []float64   `json:"face_embedding" validate:"len=128"`
	Location        GeoPoint    `json:"location"`
}

// AttendanceRecord 考勤记录，只由准入引擎写入，不删除
// idx_attendance_open 保证每个用户最多一条未签退记录
type AttendanceRecord struct {
	CheckInTime        time.Time                       `gorm:"not null;index:idx_attendance_user_check_in,priority:2" json:"check_in_time"`
	CreatedAt          time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
	CheckOutTime       *time.Time                      `json:"check_out_time,omitempty"`
	ClientTime         *time.Time                      `json:"client_time,omitempty"`
	LocationSnapshot   datatypes.JSONType[GeoPoint]    `gorm:"not null" json:"location_snapshot"`
	NetworkSnapshot    datatypes.JSONType[NetworkInfo] `gorm:"not null" json:"network_snapshot"`
	UserID             string                          `gorm:"type:varchar(64);not null;index:idx_attendance_user_check_in,priority:1;uniqueIndex:idx_attendance_open,where:check_out_time IS NULL" json:"user_id"`
	Status             AttendanceStatus                `gorm:"type:varchar(16);not null" json:"status"`
	VerificationMethod string                          `gorm:"type:varchar(64);not null" json:"verification_method"`
	ID                 int64                           `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	TotalMinutes       int                             `gorm:"not null;default:0" json:"total_minutes"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

// IsOpen 是否尚未签退
func (r *AttendanceRecord) IsOpen() bool {
	return r.CheckOutTime == nil
}
