package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath    string
	StorageBaseURL string
	ResultFormat   string // png (default) or webp

	RedisAddr     string
	RedisPassword string

	PoseServiceURL     string
	PoseServiceTimeout time.Duration

	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration
	MaxAttempts        int
	MaxUploadBytes     int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from the environment (and an optional .env
// file) and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:8080/storage"),
		ResultFormat:       getEnv("RESULT_FORMAT", "png"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		PoseServiceURL:     getEnv("POSE_SERVICE_URL", "http://localhost:9100"),
		PoseServiceTimeout: time.Second * time.Duration(getEnvInt("POSE_SERVICE_TIMEOUT_SECONDS", 30)),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		WorkerJobTimeout:   time.Second * time.Duration(getEnvInt("WORKER_JOB_TIMEOUT_SECONDS", 240)),
		MaxAttempts:        getEnvInt("JOB_MAX_ATTEMPTS", 3),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ResultFormat != "png" && cfg.ResultFormat != "webp" {
		return nil, fmt.Errorf("RESULT_FORMAT must be png or webp, got %q", cfg.ResultFormat)
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
