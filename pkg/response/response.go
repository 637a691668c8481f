package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"AttendGate/pkg/errors"
)

// Envelope 统一响应格式：成功 {success:true,data}，失败 {success:false,error,message}
type Envelope struct {
	Data    interface{}            `json:"data,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Message string                 `json:"message,omitempty"`
	Success bool                   `json:"success"`
}

// StatusFor 将错误码映射为 HTTP 状态码
func StatusFor(code string) int {
	switch code {
	case errors.Unauthorized.Code, errors.Forbidden.Code:
		return http.StatusForbidden // 403
	case errors.NoFaceProfile.Code:
		return http.StatusNotFound // 404
	case errors.AlreadyCheckedIn.Code, errors.NoActiveCheckin.Code:
		return http.StatusConflict // 409
	case errors.LocationInvalid.Code, errors.FaceMismatch.Code, errors.WifiInvalid.Code:
		return http.StatusUnprocessableEntity // 422
	case errors.InvalidRequest.Code, errors.InvalidEmbedding.Code,
		errors.SettingUnknown.Code, errors.SettingInvalid.Code:
		return http.StatusBadRequest // 400
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests // 429
	default:
		return http.StatusInternalServerError // 500
	}
}

func resolve(err error) errors.Definition {
	var def errors.Definition
	if stderrors.As(err, &def) {
		return def
	}
	return errors.InternalError
}

// Error 返回错误响应，非业务错误统一按 INTERNAL_ERROR 返回，不暴露内部信息
func Error(ctx context.Context, c *app.RequestContext, err error) {
	def := resolve(err)
	c.JSON(StatusFor(def.Code), Envelope{
		Success: false,
		Error:   def.Code,
		Message: def.Message,
	})
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	def := resolve(err)
	c.JSON(StatusFor(def.Code), Envelope{
		Success: false,
		Error:   def.Code,
		Message: def.Message,
		Details: details,
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Error:   errors.InvalidRequest.Code,
		Message: err.Error(),
	})
}

// NoContent 返回 204 No Content
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
