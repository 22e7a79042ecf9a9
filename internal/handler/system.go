package handlers

import (
	"net/http"

	"XianwaiTTS/pkg/response"

	"github.com/gin-gonic/gin"
)

// GetRateLimiterConfig 当前限流配置
func (h *Handlers) GetRateLimiterConfig(c *gin.Context) {
	response.Success(c, h.t(c, "ok", nil), h.limiter.Config())
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy", "tts_configured": h.configured})
}
