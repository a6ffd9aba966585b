package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	BotToken      string
	ChannelID     string
	ChannelName   string
	ChannelLink   string
	WebhookSecret string

	CronSpec string
	// StartupRunDelay 启动后补跑一轮的延迟，0 表示只按 cron 执行
	StartupRunDelay time.Duration
	SourcesFile     string
	// RotationSeed 启动时轮转游标的初始位置
	RotationSeed int

	CacheTTL         time.Duration
	CacheNegativeTTL time.Duration
	CacheMaxEntries  int
	FetchTimeout     time.Duration
	MinContentLength int
	PostDelay        time.Duration
	UserAgent        string

	// 管理接口的 Basic Auth，/health 与 webhook 不受影响
	BasicAuthUser string
	BasicAuthPass string

	// 以下均为可选：为空时对应功能关闭
	PostgresDSN       string
	RedisAddr         string
	BrowserScraperURL string
}

func Load() *Config {
	cfg := &Config{
		AppPort:           getEnv("APP_PORT", "8000"),
		BotToken:          getEnv("BOT_TOKEN", ""),
		ChannelID:         getEnv("CHANNEL_ID", "@Notifycast"),
		ChannelName:       getEnv("CHANNEL_NAME", "Notifycast+"),
		ChannelLink:       getEnv("CHANNEL_LINK", "https://t.me/Notifycast"),
		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		CronSpec:          getEnv("CRON_SPEC", "0 6,10,14,18 * * *"),
		StartupRunDelay:   getEnvDuration("STARTUP_RUN_DELAY", 0),
		SourcesFile:       getEnv("SOURCES_FILE", ""),
		RotationSeed:      getEnvInt("ROTATION_SEED", 0),
		CacheTTL:          getEnvDuration("CACHE_TTL", 24*time.Hour),
		CacheNegativeTTL:  getEnvDuration("CACHE_NEGATIVE_TTL", time.Hour),
		CacheMaxEntries:   getEnvInt("CACHE_MAX_ENTRIES", 1000),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		MinContentLength:  getEnvInt("MIN_CONTENT_LENGTH", 300),
		PostDelay:         getEnvDuration("POST_DELAY", 5*time.Second),
		UserAgent:         getEnv("USER_AGENT", ""),
		BasicAuthUser:     getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:     getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		BrowserScraperURL: getEnv("BROWSER_SCRAPER_URL", ""),
	}

	log.Printf("config loaded: port=%s cron=%s channel=%s history=%v", cfg.AppPort, cfg.CronSpec, cfg.ChannelID, cfg.PostgresDSN != "")
	return cfg
}

// Validate 检查数值型配置
func (c *Config) Validate() error {
	var errs []error
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL))
	}
	if c.CacheNegativeTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_NEGATIVE_TTL must be positive, got %s", c.CacheNegativeTTL))
	}
	if c.CacheMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout))
	}
	if c.MinContentLength <= 0 {
		errs = append(errs, fmt.Errorf("MIN_CONTENT_LENGTH must be positive, got %d", c.MinContentLength))
	}
	if c.StartupRunDelay < 0 {
		errs = append(errs, fmt.Errorf("STARTUP_RUN_DELAY must not be negative, got %s", c.StartupRunDelay))
	}
	if c.PostDelay < 0 {
		errs = append(errs, fmt.Errorf("POST_DELAY must not be negative, got %s", c.PostDelay))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warn: config: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}
	// 兼容纯数字秒数，例如 CACHE_TTL=86400
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("warn: config: %s=%q is not a duration, using %s", key, v, def)
	return def
}
