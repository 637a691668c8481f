package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"AttendGate/internal/middleware"
	"AttendGate/internal/model/dto"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/response"
)

// ListOfficeSettings 查看办公室配置
// GET /v1/office/settings
func (h *Handlers) ListOfficeSettings(ctx context.Context, c *app.RequestContext) {
	settings, err := h.Office.List(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, settings)
}

// UpdateOfficeSetting 管理员修改单个配置项
// PUT /v1/office/settings/:name
func (h *Handlers) UpdateOfficeSetting(ctx context.Context, c *app.RequestContext) {
	adminID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.UpdateSettingRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if len(req.Value) == 0 {
		response.Error(ctx, c, errors.SettingInvalid.WithMessage("value is required"))
		return
	}

	setting, err := h.Office.Set(ctx, adminID, c.Param("name"), req.Value)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, setting)
}

// Healthz 存活探针，设备端据此判断是否联网
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, map[string]string{"status": "ok"})
}
