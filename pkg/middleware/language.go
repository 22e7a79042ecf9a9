package middleware

import (
	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// LanguageMiddleware ?lang= 优先，其次 Accept-Language，都不支持时使用默认语言
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18nSupport.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(constants.LangField, lang)
		c.Next()
	}
}

// Lang 当前请求的语言
func Lang(c *gin.Context) string {
	return c.GetString(constants.LangField)
}
