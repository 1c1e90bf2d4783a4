package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr     string
	Port           string
	DatabasePath   string
	SessionSecret  string
	GinMode        string
	SiteBaseURL    string
	MaxUploadBytes int64

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	YouTubeAPIKey      string
	AutoSubscribe      bool

	AttemptTTL       time.Duration
	AttemptCacheSize int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	LogLevel  string
	LogFormat string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 当前目录存在 .env 时会先加载，已设置的环境变量不会被覆盖。
func Load() AppConfig {
	_ = godotenv.Load()

	port := envOrDefault("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	siteBaseURL := strings.TrimRight(envOrDefault("SITE_BASE_URL", "http://localhost:"+port), "/")

	redirectURL := strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URL"))
	if redirectURL == "" {
		redirectURL = siteBaseURL + "/auth/callback"
	}

	return AppConfig{
		ListenAddr:     listenAddr,
		Port:           port,
		DatabasePath:   envOrDefault("DATABASE_PATH", "contentgate.db"),
		SessionSecret:  envOrDefault("SESSION_SECRET", "contentgate-dev-secret"),
		GinMode:        envOrDefault("GIN_MODE", "release"),
		SiteBaseURL:    siteBaseURL,
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10<<20),

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		GoogleRedirectURL:  redirectURL,
		YouTubeAPIKey:      strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		AutoSubscribe:      envBool("AUTO_SUBSCRIBE", true),

		AttemptTTL:       envDuration("ATTEMPT_TTL", 30*time.Minute),
		AttemptCacheSize: int(envInt64("ATTEMPT_CACHE_SIZE", 4096)),

		BootstrapAdminEmail:    envOrDefault("BOOTSTRAP_ADMIN_EMAIL", "admin@example.com"),
		BootstrapAdminPassword: envOrDefault("BOOTSTRAP_ADMIN_PASSWORD", "admin123"),

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
