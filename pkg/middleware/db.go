package middleware

import (
	"XianwaiTTS/pkg/constants"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InjectDB 把全局连接放进请求上下文
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(constants.DbField, db)
		c.Next()
	}
}
