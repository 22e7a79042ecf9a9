package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Message: msg, Data: data})
}

// Fail 默认 400
func Fail(c *gin.Context, msg string, data any) {
	FailWithStatus(c, http.StatusBadRequest, msg, data)
}

func FailWithStatus(c *gin.Context, status int, msg string, data any) {
	c.AbortWithStatusJSON(status, Body{Success: false, Message: msg, Data: data})
}
