package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

type Client struct {
	id    uint64
	topic string
	ch    chan string
	done  chan struct{}
}

// C 已格式化的事件
func (c *Client) C() <-chan string { return c.ch }

// Hub 按 topic 分组的订阅者，同一 topic 可有多个连接
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[uint64]*Client
	nextID   atomic.Uint64
	interval time.Duration
	retryMs  int
	buffer   int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{topics: make(map[string]map[uint64]*Client), interval: interval, retryMs: 5000, buffer: 64}
}

func (h *Hub) Subscribe(topic string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: h.nextID.Add(1), topic: topic, ch: make(chan string, h.buffer), done: make(chan struct{})}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]*Client)
	}
	h.topics[topic][c.id] = c
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[c.topic]
	if _, ok := subs[c.id]; !ok {
		return
	}
	close(c.done)
	delete(subs, c.id)
	if len(subs) == 0 {
		delete(h.topics, c.topic)
	}
}

// Close 断开所有连接，用于服务关闭
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		for _, c := range subs {
			close(c.done)
		}
		delete(h.topics, topic)
	}
}

// Subscribers topic 当前的连接数
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish 慢消费者的消息直接丢弃，不阻塞发送方
func (h *Hub) Publish(topic, event string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	msg := formatEvent(event, string(b))
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.topics[topic] {
		select {
		case c.ch <- msg:
		default:
		}
	}
}

func formatEvent(event, data string) string {
	if event == "" {
		return fmt.Sprintf("data: %s\n\n", data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// Serve 阻塞直到客户端断开
func (h *Hub) Serve(c *gin.Context, topic string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	client := h.Subscribe(topic)
	defer h.Unsubscribe(client)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			_, _ = c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
