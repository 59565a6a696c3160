package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/url"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"

	"resumind/internal/config"
	"resumind/internal/logger"
)

const (
	// HeaderRequestID 请求追踪头
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID RequestContext 中保存请求 id 的 key
	ContextKeyRequestID = "request_id"
	// ContextKeyAPIKey 鉴权通过后保存 key 的位置
	ContextKeyAPIKey = "api_key"
)

var errInvalidAPIKey = errors.New("invalid or expired API key")

// RequestID 沿用客户端传入的 X-Request-ID，没有时生成一个
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next(ctx)
	}
}

// TokenFromQuery 支持 ?token=<key>，转换成 Authorization 头后交给 keyauth 校验
func TokenFromQuery() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if len(c.GetHeader("Authorization")) == 0 {
			if token := c.Query("token"); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next(ctx)
	}
}

// KeyAuth Bearer key 鉴权。
// 浏览器页面请求未登录时 302 到登录页，API 请求返回 401 JSON 并附带同样的跳转地址
func KeyAuth(cfg config.AuthConfig) app.HandlerFunc {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	login := loginPath(cfg)

	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithContextKey(ContextKeyAPIKey),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			redirect := LoginRedirect(login, string(c.Path()))
			logger.Debug().Err(err).Str("path", string(c.Path())).Msg("未通过鉴权")
			if WantsHTML(c) {
				c.Redirect(consts.StatusFound, []byte(redirect))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
				"error":    "unauthorized",
				"redirect": redirect,
			})
		}),
	)
}

// LoginRedirect /auth?next=<path>
func LoginRedirect(login, next string) string {
	return login + "?next=" + url.QueryEscape(next)
}

// WantsHTML 浏览器导航请求
func WantsHTML(c *app.RequestContext) bool {
	return strings.Contains(string(c.GetHeader("Accept")), "text/html")
}
