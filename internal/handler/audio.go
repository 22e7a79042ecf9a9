package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"XianwaiTTS/internal/generation"
	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/errors"
	"XianwaiTTS/pkg/response"
	"XianwaiTTS/pkg/synthesis"

	"github.com/gin-gonic/gin"
)

// authRequired 未登录返回 401
func (h *Handlers) authRequired(c *gin.Context) {
	if models.CurrentUser(c) == nil {
		response.FailWithStatus(c, http.StatusUnauthorized, h.t(c, "auth.required", nil), nil)
		return
	}
	c.Next()
}

func (h *Handlers) audioURL(filename string) string {
	return h.apiPrefix + "/audio/" + filename
}

func (h *Handlers) handleListVoices(c *gin.Context) {
	response.Success(c, h.t(c, "ok", nil), synthesis.Voices())
}

func (h *Handlers) handleGenerateAudio(c *gin.Context) {
	user := models.CurrentUser(c)

	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, h.t(c, "request.invalid", nil), nil)
		return
	}
	if !h.configured {
		response.FailWithStatus(c, http.StatusServiceUnavailable, h.t(c, "provider.not_configured", nil), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	rec, err := h.svc.Generate(ctx, user.ID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "generate.success", nil), rec.View(h.audioURL(rec.Filename)))
}

func (h *Handlers) handleDownloadAudio(c *gin.Context) {
	user := models.CurrentUser(c)
	rec, rc, size, err := h.svc.Download(c.Request.Context(), user.ID, c.Param("filename"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, "audio/mpeg", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, rec.Filename),
	})
}

func (h *Handlers) handleListHistory(c *gin.Context) {
	user := models.CurrentUser(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	recs, err := h.svc.List(c.Request.Context(), user.ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]models.HistoryView, 0, len(recs))
	for i := range recs {
		views = append(views, recs[i].View(h.audioURL(recs[i].Filename)))
	}
	response.Success(c, h.t(c, "ok", nil), views)
}

func (h *Handlers) handleDeleteHistory(c *gin.Context) {
	user := models.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.fail(c, errors.WithCode(errors.CodeNotFound, "记录不存在"))
		return
	}

	if _, err := h.svc.Delete(c.Request.Context(), user.ID, uint(id)); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "history.deleted", nil), gin.H{"id": id})
}

func (h *Handlers) handleClearHistory(c *gin.Context) {
	user := models.CurrentUser(c)
	n, err := h.svc.ClearHistory(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "history.cleared", map[string]interface{}{"Count": n}), gin.H{"deleted": n})
}
