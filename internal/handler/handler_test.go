package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"XianwaiTTS/internal/audio"
	"XianwaiTTS/internal/generation"
	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/cache"
	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/i18n"
	"XianwaiTTS/pkg/metrics"
	"XianwaiTTS/pkg/middleware"
	"XianwaiTTS/pkg/response"
	stores "XianwaiTTS/pkg/storage"
	"XianwaiTTS/pkg/synthesis"
	"XianwaiTTS/pkg/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerAudio = []byte("ID3\x03\x00handler-test-audio")

type testEnv struct {
	engine     *gin.Engine
	synthCalls *int32
	lastText   atomic.Value
	providerOK atomic.Bool
}

type testOpts struct {
	configured bool
	rate       string
}

func newTestEnv(t *testing.T, o testOpts) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{synthCalls: new(int32)}
	env.providerOK.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/2.0/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":2592000}`))
	})
	mux.HandleFunc("/text2audio", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(env.synthCalls, 1)
		_ = r.ParseForm()
		env.lastText.Store(r.PostForm.Get("tex"))
		if !env.providerOK.Load() {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"err_no":500,"err_msg":"not support"}`))
			return
		}
		w.Header().Set("Content-Type", "audio/mp3")
		_, _ = w.Write(providerAudio)
	})
	provider := httptest.NewServer(mux)
	t.Cleanup(provider.Close)

	dir := t.TempDir()
	db, err := util.InitDatabase("sqlite", filepath.Join(dir, "tts.db"), &models.User{}, &models.HistoryRecord{})
	require.NoError(t, err)
	backend, err := stores.NewLocalStore(filepath.Join(dir, "audio"))
	require.NoError(t, err)
	idem, err := cache.NewCache(cache.Config{Type: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })
	tr, err := i18n.NewI18nSupport("zh")
	require.NoError(t, err)
	m := metrics.NewMetrics()

	cfg := synthesis.Config{
		APIKey:       "ak",
		SecretKey:    "sk",
		TokenURL:     provider.URL + "/oauth/2.0/token",
		SynthesisURL: provider.URL + "/text2audio",
		Retry:        synthesis.RetryPolicy{BackoffUnit: time.Millisecond},
	}
	client := synthesis.NewClient(cfg, synthesis.WithObserver(m))
	svc := generation.NewService(generation.Deps{
		Synthesizer: client,
		Audio:       audio.NewStore(backend),
		History:     models.NewHistoryRepository(db),
		Observer:    m,
		Defaults:    client.Config().Defaults,
	})

	rate := o.rate
	if rate == "" {
		rate = "100-M"
	}
	h := NewHandlers(db, Options{
		APIPrefix:   "/api",
		Service:     svc,
		Configured:  o.configured,
		I18n:        tr,
		Metrics:     m,
		Limiter:     middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: rate, Identifier: "user"}, nil).WithObserver(m),
		Idempotency: idem,
	})

	r := gin.New()
	r.Use(metrics.MonitorMiddleware(m))
	r.Use(sessions.Sessions(constants.SessionName, cookie.NewStore([]byte("test-secret"))))
	h.Register(r)
	env.engine = r
	return env
}

type agent struct {
	env     *testEnv
	cookies []*http.Cookie
}

func (e *testEnv) agent() *agent { return &agent{env: e} }

func (a *agent) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.env.engine.ServeHTTP(w, req)
	if cs := w.Result().Cookies(); len(cs) > 0 {
		a.cookies = cs
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) response.Body {
	t.Helper()
	var body response.Body
	if data != nil {
		body.Data = data
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (a *agent) register(t *testing.T, name string) {
	t.Helper()
	w := a.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGenerateEndToEnd(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "alice")

	var view models.HistoryView
	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "欢迎使用语音合成服务", "voice": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w, &view)
	assert.True(t, body.Success)
	assert.Equal(t, "语音生成成功", body.Message)
	assert.Equal(t, "度小美 - 默认女声", view.VoiceName)
	assert.Equal(t, "/api/audio/"+view.Filename, view.AudioURL)
	assert.Equal(t, 5, view.Speed)
	assert.Equal(t, "欢迎使用语音合成服务", env.lastText.Load())

	w = a.do(http.MethodGet, view.AudioURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), view.Filename)
	assert.Equal(t, providerAudio, w.Body.Bytes())

	var list []models.HistoryView
	w = a.do(http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, view.ID, list[0].ID)

	w = a.do(http.MethodDelete, fmt.Sprintf("/api/history/%d", view.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(http.MethodGet, view.AudioURL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(http.MethodDelete, fmt.Sprintf("/api/history/%d", view.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateRequiresLogin(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()

	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "你好"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "请先登录", decode(t, w, nil).Message)

	w = a.do(http.MethodPost, "/api/generate-audio?lang=en", map[string]any{"text": "你好"})
	assert.Equal(t, "Please sign in first", decode(t, w, nil).Message)
	assert.Zero(t, atomic.LoadInt32(env.synthCalls))
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "bob")

	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": strings.Repeat("汉", 513)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "文本长度超过1024字节限制，请缩短文本或分段处理", decode(t, w, nil).Message)

	w = a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "   "}, "Accept-Language", "en-US")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please enter the text to convert", decode(t, w, nil).Message)

	w = a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "你好", "voice": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, atomic.LoadInt32(env.synthCalls))
}

func TestGenerateProviderError(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	env.providerOK.Store(false)
	a := env.agent()
	a.register(t, "carol")

	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "你好"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "语音合成失败: not support (错误码: 500)", decode(t, w, nil).Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(env.synthCalls))

	w = a.do(http.MethodGet, "/api/history", nil)
	var list []models.HistoryView
	decode(t, w, &list)
	assert.Empty(t, list)
}

func TestGenerateNotConfigured(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: false})
	a := env.agent()
	a.register(t, "dave")

	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "你好"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "语音合成服务未配置", decode(t, w, nil).Message)
	assert.Zero(t, atomic.LoadInt32(env.synthCalls))
}

func TestGenerateIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "erin")

	body := map[string]any{"text": "你好"}
	w := a.do(http.MethodPost, "/api/generate-audio", body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodPost, "/api/generate-audio", body, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "请求正在处理，请勿重复提交", decode(t, w, nil).Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(env.synthCalls))
}

func TestGenerateSameTextTwice(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "gina")

	body := map[string]any{"text": "再来一次"}
	var first, second models.HistoryView
	w := a.do(http.MethodPost, "/api/generate-audio", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &first)
	w = a.do(http.MethodPost, "/api/generate-audio", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &second)

	assert.NotEqual(t, first.Filename, second.Filename)
	assert.Equal(t, int32(2), atomic.LoadInt32(env.synthCalls))

	var list []models.HistoryView
	decode(t, a.do(http.MethodGet, "/api/history", nil), &list)
	assert.Len(t, list, 2)
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true, rate: "1-M"})
	a := env.agent()
	a.register(t, "frank")

	w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "一"}, "Idempotency-Key", "1")
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "二"}, "Idempotency-Key", "2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "请求过于频繁，请稍后再试", decode(t, w, nil).Message)

	// 限流按用户
	b := env.agent()
	b.register(t, "grace")
	w = b.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "三"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadOtherUsersAudio(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	alice := env.agent()
	alice.register(t, "alice")
	mallory := env.agent()
	mallory.register(t, "mallory")

	var view models.HistoryView
	w := alice.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": "秘密"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)

	w = mallory.do(http.MethodGet, view.AudioURL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "文件不存在或无权访问", decode(t, w, nil).Message)

	w = mallory.do(http.MethodDelete, fmt.Sprintf("/api/history/%d", view.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = mallory.do(http.MethodGet, "/api/audio/..%2Ftts.db", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = alice.do(http.MethodGet, view.AudioURL, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClearHistory(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "henry")

	for i := 0; i < 3; i++ {
		w := a.do(http.MethodPost, "/api/generate-audio", map[string]any{"text": fmt.Sprintf("第%d段", i)})
		require.Equal(t, http.StatusOK, w.Code)
	}

	var out struct {
		Deleted int `json:"deleted"`
	}
	w := a.do(http.MethodDelete, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w, &out)
	assert.Equal(t, 3, out.Deleted)
	assert.Equal(t, "已清空 3 条记录", body.Message)

	var list []models.HistoryView
	decode(t, a.do(http.MethodGet, "/api/history?limit=10", nil), &list)
	assert.Empty(t, list)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()
	a.register(t, "ivan")

	w := a.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "ivan", "email": "other@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var u models.User
	w = a.do(http.MethodGet, "/api/user/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &u)
	assert.Equal(t, "ivan", u.Username)
	assert.NotContains(t, w.Body.String(), "password")

	w = a.do(http.MethodGet, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodGet, "/api/user/info", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ivan", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = a.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ivan", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodGet, "/api/user/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVoicesHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, testOpts{configured: true})
	a := env.agent()

	var voices []synthesis.Voice
	w := a.do(http.MethodGet, "/api/voices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &voices)
	assert.Contains(t, voices, synthesis.Voice{ID: 0, Name: "度小美 - 默认女声"})

	w = a.do(http.MethodGet, "/api/system/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = a.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "xianwai_http_requests_total")
}
