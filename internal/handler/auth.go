package handlers

import (
	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupForm struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type signinForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleUserSignup(c *gin.Context) {
	var form signupForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, h.t(c, "request.invalid", nil), nil)
		return
	}
	u, err := models.CreateUser(h.db.WithContext(c.Request.Context()), form.Username, form.Email, form.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := models.Login(c, u); err != nil {
		h.fail(c, err)
		return
	}
	logger.Info("user registered", zap.Uint("user", u.ID))
	response.Success(c, h.t(c, "auth.registered", nil), u)
}

func (h *Handlers) handleUserSignin(c *gin.Context) {
	var form signinForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, h.t(c, "request.invalid", nil), nil)
		return
	}
	u, err := models.Authenticate(h.db.WithContext(c.Request.Context()), form.Username, form.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := models.Login(c, u); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "auth.logged_in", nil), u)
}

func (h *Handlers) handleUserLogout(c *gin.Context) {
	if err := models.Logout(c); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "auth.logged_out", nil), nil)
}

func (h *Handlers) handleUserInfo(c *gin.Context) {
	response.Success(c, h.t(c, "ok", nil), models.CurrentUser(c))
}
