package handler

import (
	"context"
	"encoding/json"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/internal/model/dto"
)

// Admitter 准入引擎
type Admitter interface {
	Admit(ctx context.Context, callerID string, attempt model.AttendanceAttempt) (admission.Outcome, error)
}

type AttendanceQuerier interface {
	Open(ctx context.Context, userID string) (*dto.AttendanceRecordData, error)
	History(ctx context.Context, userID string, q dto.AttendanceHistoryQuery) (*dto.AttendanceHistoryResponse, error)
}

type Enroller interface {
	Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.ProfileSummary, error)
	Profile(ctx context.Context, userID string) (*dto.ProfileSummary, error)
}

type OfficeSettings interface {
	List(ctx context.Context) ([]model.OfficeSetting, error)
	Set(ctx context.Context, updatedBy, name string, value json.RawMessage) (*model.OfficeSetting, error)
}

// Handlers HTTP 处理器集合，依赖在启动时注入
type Handlers struct {
	Engine     Admitter
	Attendance AttendanceQuerier
	Enrollment Enroller
	Office     OfficeSettings
}
