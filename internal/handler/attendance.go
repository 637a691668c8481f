package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"AttendGate/internal/middleware"
	"AttendGate/internal/model"
	"AttendGate/internal/model/dto"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/response"
)

// Admit 提交一次打卡，拒绝原因以业务错误码返回
// POST /v1/attendance
func (h *Handlers) Admit(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var attempt model.AttendanceAttempt
	if err := c.Bind(&attempt); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	outcome, err := h.Engine.Admit(ctx, userID, attempt)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if !outcome.IsAdmitted() {
		response.Error(ctx, c, outcome.Reason)
		return
	}

	response.Success(ctx, c, dto.AdmitData{
		AttendanceID: outcome.Admission.AttendanceID,
		Status:       string(outcome.Admission.Status),
		Time:         outcome.Admission.Time,
	})
}

// GetOpenAttendance 当前未签退记录
// GET /v1/attendance/open
func (h *Handlers) GetOpenAttendance(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	result, err := h.Attendance.Open(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetAttendanceHistory 分页查询考勤历史
// GET /v1/attendance/history
func (h *Handlers) GetAttendanceHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var q dto.AttendanceHistoryQuery
	if err := c.Bind(&q); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := h.Attendance.History(ctx, userID, q)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}
