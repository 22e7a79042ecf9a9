package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig 限流配置
//
// Rate 形如 "10-M"，Identifier 为 "user"（未登录时退化为 IP）或 "ip"
type RateLimiterConfig struct {
	Rate       string `json:"rate"`
	Identifier string `json:"identifier"`
	AddHeaders bool   `json:"add_headers"`
}

// MetricsObserver 指标上报接口，*metrics.Metrics 实现了它
type MetricsObserver interface {
	OnAllow(route string, key string)
	OnDeny(route string, key string)
}

type RateLimiter struct {
	cfg         RateLimiterConfig
	lim         *limiter.Limiter
	observer    MetricsObserver
	denyMessage func(c *gin.Context) string
	mu          sync.RWMutex
}

// NewRateLimiter store 为 nil 时使用内存存储；速率格式错误时按 10-S
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = "10-S"
	}
	r, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	return &RateLimiter{cfg: cfg, lim: limiter.New(store, r)}
}

// NewRedisStore 多实例部署时共享计数
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "xianwai:ratelimit"
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// WithDenyMessage 按请求生成拒绝提示，用于多语言
func (l *RateLimiter) WithDenyMessage(fn func(c *gin.Context) string) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denyMessage = fn
	return l
}

// Config 当前配置
func (l *RateLimiter) Config() RateLimiterConfig {
	return l.cfg
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := l.limitKey(c)
		lctx, err := l.lim.Get(c, key)
		if err != nil {
			// 存储不可用时放行
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			setStandardHeaders(c, lctx)
		}
		if lctx.Reached {
			setRetryAfter(c, time.Until(time.Unix(lctx.Reset, 0)))
			l.report(c, key, false)
			l.deny(c)
			return
		}

		l.report(c, key, true)
		c.Next()
	}
}

func (l *RateLimiter) limitKey(c *gin.Context) string {
	ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
	if l.cfg.Identifier == "user" {
		if user := currentUserID(c); user != "" {
			return "user:" + user
		}
	}
	return "ip:" + ip
}

func (l *RateLimiter) report(c *gin.Context, key string, allowed bool) {
	l.mu.RLock()
	obs := l.observer
	l.mu.RUnlock()
	if obs == nil {
		return
	}
	r := c.FullPath()
	if r == "" {
		r = c.Request.URL.Path
	}
	if allowed {
		obs.OnAllow(r, key)
	} else {
		obs.OnDeny(r, key)
	}
}

func (l *RateLimiter) deny(c *gin.Context) {
	l.mu.RLock()
	fn := l.denyMessage
	l.mu.RUnlock()
	msg := "Too Many Requests"
	if fn != nil {
		msg = fn(c)
	}
	response.FailWithStatus(c, http.StatusTooManyRequests, msg, nil)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(constants.UserIDKey)
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}
