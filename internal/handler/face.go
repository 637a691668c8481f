package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"AttendGate/internal/middleware"
	"AttendGate/internal/model/dto"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/response"
)

// PutFaceProfile 录入或重新录入本人人脸模板
// PUT /v1/face/profile
func (h *Handlers) PutFaceProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.EnrollRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := h.Enrollment.Enroll(ctx, userID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GET /v1/face/profile
func (h *Handlers) GetFaceProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	result, err := h.Enrollment.Profile(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}
