package model

// 考勤事件类型
const (
	EventTypeCheckIn  = "attendance.check_in"
	EventTypeCheckOut = "attendance.check_out"
)

// AttendanceEventMessage 考勤准入成功事件，交给外部通知服务
type AttendanceEventMessage struct {
	MessageID    string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	AttendanceID string `json:"attendance_id"`
	Status       string `json:"status"`
	OccurredAt   string `json:"occurred_at"`
}
