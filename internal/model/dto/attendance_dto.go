package dto

import "time"

// ========== Attendance 相关 DTO ==========

// AdmitData 准入成功返回的数据
type AdmitData struct {
	Time         time.Time `json:"time"`
	AttendanceID string    `json:"attendance_id"`
	Status       string    `json:"status"`
}

// AttendanceRecordData 考勤记录
type AttendanceRecordData struct {
	CheckInTime        time.Time  `json:"check_in_time"`
	CheckOutTime       *time.Time `json:"check_out_time,omitempty"`
	ClientTime         *time.Time `json:"client_time,omitempty"`
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	VerificationMethod string     `json:"verification_method"`
	TotalMinutes       int        `json:"total_minutes"`
}

// AttendanceHistoryQuery 考勤历史查询参数，cursor 为上一页最后一条记录 ID
type AttendanceHistoryQuery struct {
	Cursor string `query:"cursor"`
	Limit  int    `query:"limit"`
}

// AttendanceHistoryResponse 考勤历史
type AttendanceHistoryResponse struct {
	NextCursor string                 `json:"next_cursor,omitempty"`
	Items      []AttendanceRecordData `json:"items"`
}
