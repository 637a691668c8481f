package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"AttendGate/internal/handler"
	"AttendGate/internal/middleware"
	"AttendGate/pkg/token"
)

// Options 可选中间件，为空时不挂载
type Options struct {
	Tracing     app.HandlerFunc
	RateLimiter app.HandlerFunc
	Production  bool
}

func Register(r *route.Engine, hd *handler.Handlers, opts Options) {
	if opts.Tracing != nil {
		r.Use(opts.Tracing)
	}
	r.Use(middleware.RecoverMiddleware(opts.Production))
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OpenTelemetryMiddleware())

	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware())

	// 考勤准入
	attendance := v1.Group("/attendance")
	{
		submit := []app.HandlerFunc{hd.Admit}
		if opts.RateLimiter != nil {
			submit = append([]app.HandlerFunc{opts.RateLimiter}, submit...)
		}
		attendance.POST("", submit...)
		attendance.GET("/open", hd.GetOpenAttendance)
		attendance.GET("/history", hd.GetAttendanceHistory)
	}

	// 人脸录入
	face := v1.Group("/face")
	{
		face.PUT("/profile", hd.PutFaceProfile)
		face.GET("/profile", hd.GetFaceProfile)
	}

	// 办公室配置，写入需要管理员
	office := v1.Group("/office")
	{
		office.GET("/settings", hd.ListOfficeSettings)
		office.PUT("/settings/:name", middleware.RequireRole(token.RoleAdmin), hd.UpdateOfficeSetting)
	}
}
