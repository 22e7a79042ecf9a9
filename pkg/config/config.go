package config

import (
	"log"
	"os"
	"time"

	"XianwaiTTS/pkg/cache"
	"XianwaiTTS/pkg/logger"
	stores "XianwaiTTS/pkg/storage"
	"XianwaiTTS/pkg/synthesis"
	"XianwaiTTS/pkg/util"
)

// config/config.go
type Config struct {
	Addr              string `env:"ADDR"`
	Mode              string `env:"MODE"`
	APIPrefix         string `env:"API_PREFIX"`
	DBDriver          string `env:"DB_DRIVER"`
	DSN               string `env:"DSN"`
	SessionSecret     string `env:"SESSION_SECRET"`
	SessionExpireDays int    `env:"SESSION_EXPIRE_DAYS"`
	DefaultLang       string `env:"DEFAULT_LANG"`
	Log               logger.LogConfig

	TTS            synthesis.Config
	RequestTimeout time.Duration `env:"TTS_REQUEST_TIMEOUT"`

	StoreDriver string `env:"STORE_DRIVER"` // local|minio
	AudioDir    string `env:"AUDIO_DIR"`
	Minio       stores.MinioConfig

	Cache     cache.Config
	RateLimit string `env:"RATE_LIMIT"`

	SweepEnabled  bool          `env:"SWEEP_ENABLED"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE"`
	SweepGrace    time.Duration `env:"SWEEP_GRACE"`

	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupKeep     int    `env:"BACKUP_KEEP"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = FromEnv()
	return nil
}

// FromEnv 只读取当前进程环境变量
func FromEnv() *Config {
	return &Config{
		Addr:              util.GetEnvOr("ADDR", ":8080"),
		Mode:              util.GetEnvOr("MODE", "debug"),
		APIPrefix:         util.GetEnvOr("API_PREFIX", "/api"),
		DBDriver:          util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:               util.GetEnvOr("DSN", "data/xianwai.db"),
		SessionSecret:     util.GetEnv("SESSION_SECRET"),
		SessionExpireDays: int(util.GetIntEnvOr("SESSION_EXPIRE_DAYS", 7)),
		DefaultLang:       util.GetEnvOr("DEFAULT_LANG", "zh"),
		Log: logger.LogConfig{
			Level:      util.GetEnvOr("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		TTS: synthesis.Config{
			AppID:        util.GetEnv("BAIDU_APP_ID"),
			APIKey:       util.GetEnv("BAIDU_API_KEY"),
			SecretKey:    util.GetEnv("BAIDU_SECRET_KEY"),
			TokenURL:     util.GetEnvOr("TTS_TOKEN_URL", synthesis.DefaultTokenURL),
			SynthesisURL: util.GetEnvOr("TTS_SYNTHESIS_URL", synthesis.DefaultSynthesisURL),
			Lang:         util.GetEnvOr("TTS_LANG", "zh"),
			Defaults:     synthesis.DefaultParams(),
			HTTPTimeout:  util.GetDurationEnvOr("TTS_HTTP_TIMEOUT", 30*time.Second),
			Retry: synthesis.RetryPolicy{
				MaxRetries:  int(util.GetIntEnvOr("TTS_MAX_RETRIES", 3)),
				BackoffUnit: util.GetDurationEnvOr("TTS_BACKOFF_UNIT", time.Second),
			},
		},
		RequestTimeout: util.GetDurationEnvOr("TTS_REQUEST_TIMEOUT", 2*time.Minute),
		StoreDriver:    util.GetEnvOr("STORE_DRIVER", "local"),
		AudioDir:       util.GetEnvOr("AUDIO_DIR", "audio_files"),
		Minio: stores.MinioConfig{
			Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
			AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
			SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
			Bucket:    util.GetEnvOr("MINIO_BUCKET", "xianwai-audio"),
			UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
		},
		Cache: cache.Config{
			Type: util.GetEnvOr("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
			},
		},
		RateLimit:      util.GetEnvOr("RATE_LIMIT", "10-M"),
		SweepEnabled:   util.GetBoolEnvOr("SWEEP_ENABLED", true),
		SweepSchedule:  util.GetEnvOr("SWEEP_SCHEDULE", "@every 1h"),
		SweepGrace:     util.GetDurationEnvOr("SWEEP_GRACE", time.Hour),
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvOr("BACKUP_PATH", "backups"),
		BackupSchedule: util.GetEnvOr("BACKUP_SCHEDULE", "0 3 * * *"),
		BackupKeep:     int(util.GetIntEnvOr("BACKUP_KEEP", 7)),
	}
}

// SessionMaxAge 会话有效期，秒
func (c *Config) SessionMaxAge() int {
	days := c.SessionExpireDays
	if days <= 0 {
		days = 7
	}
	return days * 24 * 3600
}
