package handlers

import (
	"fmt"

	"XianwaiTTS/internal/generation"
	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/sse"

	"github.com/gin-gonic/gin"
)

func userTopic(id uint) string { return fmt.Sprintf("user:%d", id) }

// EventNotifier 把生成进度推送到该用户的 SSE 连接
type EventNotifier struct {
	hub *sse.Hub
}

func NewEventNotifier(hub *sse.Hub) *EventNotifier {
	return &EventNotifier{hub: hub}
}

func (n *EventNotifier) Notify(ownerID uint, ev generation.Event) {
	n.hub.Publish(userTopic(ownerID), "generation", ev)
}

func (h *Handlers) handleEvents(c *gin.Context) {
	user := models.CurrentUser(c)
	h.hub.Serve(c, userTopic(user.ID))
}
