package handlers

import (
	"time"

	"XianwaiTTS/internal/generation"
	"XianwaiTTS/pkg/i18n"
	"XianwaiTTS/pkg/metrics"
	"XianwaiTTS/pkg/middleware"
	"XianwaiTTS/pkg/sse"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options 路由依赖
type Options struct {
	APIPrefix string
	Service   *generation.Service
	// Configured 语音合成凭据是否已配置
	Configured     bool
	RequestTimeout time.Duration
	I18n           *i18n.I18nSupport
	Metrics        *metrics.Metrics
	Limiter        *middleware.RateLimiter
	Idempotency    middleware.IdemStore
	// Hub 为空时不注册 /events
	Hub *sse.Hub
}

type Handlers struct {
	db             *gorm.DB
	svc            *generation.Service
	configured     bool
	apiPrefix      string
	requestTimeout time.Duration
	i18n           *i18n.I18nSupport
	metrics        *metrics.Metrics
	limiter        *middleware.RateLimiter
	idem           middleware.IdemStore
	hub            *sse.Hub
}

func NewHandlers(db *gorm.DB, opts Options) *Handlers {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.Limiter == nil {
		opts.Limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: "10-M", Identifier: "user"}, nil)
	}
	h := &Handlers{
		db:             db,
		svc:            opts.Service,
		configured:     opts.Configured,
		apiPrefix:      opts.APIPrefix,
		requestTimeout: opts.RequestTimeout,
		i18n:           opts.I18n,
		metrics:        opts.Metrics,
		limiter:        opts.Limiter,
		idem:           opts.Idempotency,
		hub:            opts.Hub,
	}
	h.limiter.WithDenyMessage(func(c *gin.Context) string { return h.t(c, "rate_limited", nil) })
	return h
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	r := engine.Group(h.apiPrefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	if h.i18n != nil {
		r.Use(middleware.LanguageMiddleware(h.i18n))
	}

	h.registerSystemRoutes(r)
	h.registerAuthRoutes(r)
	h.registerAudioRoutes(r)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.GET("/rate-limiter/config", h.authRequired, h.GetRateLimiterConfig)
	}
}

// User Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group("auth")
	{
		auth.POST("/register", h.handleUserSignup)

		auth.POST("/login", h.handleUserSignin)

		auth.GET("/logout", h.authRequired, h.handleUserLogout)
	}

	r.GET("/user/info", h.authRequired, h.handleUserInfo)
}

// TTS Module
func (h *Handlers) registerAudioRoutes(r *gin.RouterGroup) {
	r.GET("/voices", h.handleListVoices)

	r.POST("/generate-audio",
		h.authRequired,
		h.limiter.Middleware(),
		middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
			Store:   h.idem,
			Message: func(c *gin.Context) string { return h.t(c, "request.duplicate", nil) },
		}),
		h.handleGenerateAudio,
	)

	r.GET("/audio/:filename", h.authRequired, h.handleDownloadAudio)

	if h.hub != nil {
		r.GET("/events", h.authRequired, h.handleEvents)
	}

	history := r.Group("history", h.authRequired)
	{
		history.GET("", h.handleListHistory)

		history.DELETE("", h.handleClearHistory)

		history.DELETE("/:id", h.handleDeleteHistory)
	}
}
