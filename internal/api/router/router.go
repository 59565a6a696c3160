package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"resumind/internal/api/handler"
	"resumind/internal/config"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg config.AuthConfig, resumeHandler *handler.ResumeHandler, systemHandler *handler.SystemHandler) {
	h.Use(RequestID())

	// 无需鉴权
	h.GET(loginPath(cfg), systemHandler.HandleAuth)
	h.GET("/api/v1/health", systemHandler.HandleHealth)

	var protected []app.HandlerFunc
	if cfg.Enabled {
		protected = append(protected, TokenFromQuery(), KeyAuth(cfg))
	}

	// 结果页路径，与 analyzer 生成的 /resume/<id> 一致
	pages := h.Group("/", protected...)
	pages.GET("/", resumeHandler.HandleList)
	pages.GET("/resume/:id", resumeHandler.HandleGet)

	api := h.Group("/api/v1", protected...)
	api.POST("/resumes", resumeHandler.HandleUpload)
	api.GET("/resumes", resumeHandler.HandleList)
	api.GET("/resumes/:id", resumeHandler.HandleGet)
	api.GET("/resumes/:id/file", resumeHandler.HandleFile)
	api.GET("/resumes/:id/image", resumeHandler.HandleImage)
	api.GET("/uploads/:id/status", resumeHandler.HandleStatus)
}

func loginPath(cfg config.AuthConfig) string {
	if cfg.LoginURL == "" {
		return "/auth"
	}
	return cfg.LoginURL
}
