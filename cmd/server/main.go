package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"XianwaiTTS/internal/audio"
	"XianwaiTTS/internal/generation"
	handlers "XianwaiTTS/internal/handler"
	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/backup"
	"XianwaiTTS/pkg/cache"
	"XianwaiTTS/pkg/config"
	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/i18n"
	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/metrics"
	"XianwaiTTS/pkg/middleware"
	"XianwaiTTS/pkg/scheduler"
	"XianwaiTTS/pkg/sse"
	stores "XianwaiTTS/pkg/storage"
	"XianwaiTTS/pkg/synthesis"
	"XianwaiTTS/pkg/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, &models.User{}, &models.HistoryRecord{})
	if err != nil {
		logger.Error("init database failed", zap.Error(err))
		os.Exit(1)
	}

	kv, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Error("init cache failed", zap.Error(err))
		os.Exit(1)
	}
	defer kv.Close()

	backend, err := newArtifactBackend(cfg)
	if err != nil {
		logger.Error("init audio store failed", zap.Error(err))
		os.Exit(1)
	}

	m := metrics.NewMetrics()
	client := synthesis.NewClient(cfg.TTS,
		synthesis.WithTokenCache(kv),
		synthesis.WithObserver(m),
	)
	if !client.Config().Configured() {
		logger.Warn("BAIDU_API_KEY / BAIDU_SECRET_KEY not set, audio generation disabled")
	}

	hub := sse.NewHub(30 * time.Second)
	svc := generation.NewService(generation.Deps{
		Synthesizer: client,
		Audio:       audio.NewStore(backend),
		History:     models.NewHistoryRepository(db),
		Observer:    m,
		Notifier:    handlers.NewEventNotifier(hub),
		Defaults:    client.Config().Defaults,
	})

	tr, err := i18n.NewI18nSupport(cfg.DefaultLang)
	if err != nil {
		logger.Error("init i18n failed", zap.Error(err))
		os.Exit(1)
	}

	limiterStore, err := newLimiterStore(kv)
	if err != nil {
		logger.Error("init rate limiter store failed", zap.Error(err))
		os.Exit(1)
	}
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		Identifier: "user",
		AddHeaders: true,
	}, limiterStore).WithObserver(m)

	cron := scheduler.NewCron(time.Local)
	if cfg.SweepEnabled {
		if _, err := cron.Add(cfg.SweepSchedule, svc.SweepJob(cfg.SweepGrace)); err != nil {
			logger.Error("invalid SWEEP_SCHEDULE", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.BackupEnabled {
		b := backup.New(db, backup.Options{Driver: cfg.DBDriver, DSN: cfg.DSN, Dir: cfg.BackupPath, Keep: cfg.BackupKeep})
		if _, err := cron.Add(cfg.BackupSchedule, b.Job()); err != nil {
			logger.Error("invalid BACKUP_SCHEDULE", zap.String("schedule", cfg.BackupSchedule), zap.Error(err))
			os.Exit(1)
		}
	}
	cron.Start()
	defer cron.Stop()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, using an insecure development secret")
		cfg.SessionSecret = "xianwai-dev-secret"
	}
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: cfg.SessionMaxAge(), HttpOnly: true})

	engine := gin.New()
	engine.Use(logger.GinLogger(), logger.GinRecovery())
	engine.Use(metrics.MonitorMiddleware(m))
	engine.Use(sessions.Sessions(constants.SessionName, store))

	handlers.NewHandlers(db, handlers.Options{
		APIPrefix:      cfg.APIPrefix,
		Service:        svc,
		Configured:     client.Config().Configured(),
		RequestTimeout: cfg.RequestTimeout,
		I18n:           tr,
		Metrics:        m,
		Limiter:        rl,
		Idempotency:    kv,
		Hub:            hub,
	}).Register(engine)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// SSE 长连接不会自行结束
	srv.RegisterOnShutdown(hub.Close)

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

func newArtifactBackend(cfg *config.Config) (stores.Store, error) {
	switch cfg.StoreDriver {
	case "minio":
		return stores.NewMinioStore(cfg.Minio), nil
	default:
		return stores.NewLocalStore(cfg.AudioDir)
	}
}

// newLimiterStore redis 缓存时共享同一连接，其余情况返回 nil 使用内存
func newLimiterStore(kv cache.Cache) (limiter.Store, error) {
	if rc, ok := kv.(interface{ Client() *redis.Client }); ok {
		return middleware.NewRedisStore(rc.Client(), "")
	}
	return nil, nil
}
