package handlers

import (
	"XianwaiTTS/pkg/errors"
	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/middleware"
	"XianwaiTTS/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// t 按请求语言翻译
func (h *Handlers) t(c *gin.Context, key string, data map[string]interface{}) string {
	if h.i18n == nil {
		return key
	}
	lang := middleware.Lang(c)
	if lang == "" {
		lang = h.i18n.DefaultLang()
	}
	return h.i18n.T(lang, key, data)
}

func (h *Handlers) defaultLang(c *gin.Context) bool {
	if h.i18n == nil {
		return true
	}
	lang := middleware.Lang(c)
	return lang == "" || lang == h.i18n.DefaultLang()
}

// fail 错误码决定 HTTP 状态；存储和内部错误只返回笼统提示，细节写日志
func (h *Handlers) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	_ = c.Error(err)
	if status >= 500 && errors.GetCode(err) != errors.CodeProvider && errors.GetCode(err) != errors.CodeProviderUnavailable {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	response.FailWithStatus(c, status, h.errorMessage(c, err), nil)
}

func (h *Handlers) errorMessage(c *gin.Context, err error) string {
	e, ok := errors.As(err)
	if !ok {
		return h.t(c, "internal", nil)
	}
	switch e.Code {
	case errors.CodeStorage:
		return h.t(c, "storage.failed", nil)
	case errors.CodeInternal:
		return h.t(c, "internal", nil)
	}
	// 默认语言下直接使用错误自带的提示，包含服务商返回的细节
	if h.defaultLang(c) {
		return e.Error()
	}
	switch e.Code {
	case errors.CodeValidation:
		switch e.Value("reason") {
		case "empty":
			return h.t(c, "text.empty", nil)
		case "too_long":
			return h.t(c, "text.too_long", nil)
		}
		return h.t(c, "request.invalid", nil)
	case errors.CodeUnauthorized:
		return h.t(c, "auth.invalid", nil)
	case errors.CodeNotFound:
		return h.t(c, "file.not_found", nil)
	case errors.CodeConflict:
		return h.t(c, "auth.conflict", nil)
	case errors.CodeProvider:
		return h.t(c, "provider.failed", nil)
	case errors.CodeProviderUnavailable:
		return h.t(c, "provider.unavailable", nil)
	}
	return h.t(c, "internal", nil)
}
