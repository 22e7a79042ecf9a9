package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishToTopic(t *testing.T) {
	h := NewHub(time.Minute)
	a := h.Subscribe("user:1")
	b := h.Subscribe("user:2")
	assert.Equal(t, 1, h.Subscribers("user:1"))

	h.Publish("user:1", "state", map[string]string{"state": "done"})

	select {
	case msg := <-a.C():
		assert.Equal(t, "event: state\ndata: {\"state\":\"done\"}\n\n", msg)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	select {
	case msg := <-b.C():
		t.Fatalf("unexpected message %q", msg)
	default:
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	assert.Zero(t, h.Subscribers("user:1"))
}

func TestPublishDropsWhenFull(t *testing.T) {
	h := NewHub(time.Minute)
	c := h.Subscribe("t")
	for i := 0; i < h.buffer+10; i++ {
		h.Publish("t", "", i)
	}
	assert.Len(t, c.ch, h.buffer)
}

func TestServeStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Minute)
	r := gin.New()
	r.GET("/events", func(c *gin.Context) { h.Serve(c, "user:1") })

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.Subscribers("user:1") == 1 }, time.Second, 10*time.Millisecond)
	h.Publish("user:1", "state", map[string]string{"state": "synthesizing"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 5000\n\n"))
	assert.Contains(t, body, "event: state\ndata: {\"state\":\"synthesizing\"}")
	assert.Zero(t, h.Subscribers("user:1"))
}

func TestCloseDisconnectsAll(t *testing.T) {
	h := NewHub(time.Minute)
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	h.Close()

	for _, c := range []*Client{a, b} {
		select {
		case <-c.done:
		default:
			t.Fatal("client not closed")
		}
	}
	assert.Zero(t, h.Subscribers("a"))
	// 关闭后的退订不会重复 close
	h.Unsubscribe(a)
}
