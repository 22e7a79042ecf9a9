package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdemStore cache.Cache 满足该接口
type IdemStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 一段时间内重复请求的拒绝窗口
	Store      IdemStore
	Prefix     string
	// Message 重复请求的提示，可按请求语言生成
	Message func(c *gin.Context) string
}

// IdempotencyMiddleware 同一用户同一幂等键只处理一次，处理失败会释放键以便重试
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	return func(c *gin.Context) {
		if cfg.Store == nil {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			// 未带幂等键的请求不去重
			c.Next()
			return
		}
		key = cfg.Prefix + currentUserID(c) + ":" + c.FullPath() + ":" + key

		ok, err := cfg.Store.SetNX(c.Request.Context(), key, time.Now().Unix(), cfg.TTL)
		if err != nil {
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			msg := "duplicate request"
			if cfg.Message != nil {
				msg = cfg.Message(c)
			}
			response.FailWithStatus(c, http.StatusConflict, msg, nil)
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := cfg.Store.Delete(context.WithoutCancel(c.Request.Context()), key); err != nil {
				logger.Warn("release idempotency key failed", zap.Error(err))
			}
		}
	}
}
