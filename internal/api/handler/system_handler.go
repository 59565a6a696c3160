package handler

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resumind/internal/logger"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler 登录提示与健康检查
type SystemHandler struct {
	pinger  Pinger
	version string
}

// NewSystemHandler pinger 为 nil 时健康检查总是成功
func NewSystemHandler(pinger Pinger, version string) *SystemHandler {
	return &SystemHandler{pinger: pinger, version: version}
}

// HandleAuth GET /auth?next=/resume/<id>
// 登录由外部服务完成，这里只回显登录后要返回的站内路径
func (h *SystemHandler) HandleAuth(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"login_required": true,
		"next":           SafeNext(c.Query("next")),
		"message":        "Log in to continue to your resume analysis",
	})
}

// HandleHealth GET /api/v1/health
func (h *SystemHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	if h.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := h.pinger.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Msg("健康检查失败")
			c.JSON(consts.StatusServiceUnavailable, utils.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "version": h.version})
}

// SafeNext 只允许站内相对路径，防止开放重定向
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}
