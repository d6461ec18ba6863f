package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken string
	DatabaseURL   string

	HTTPListenAddr string

	ScoringBaseURL string
	ScoringAPIKey  string
	ScoringModel   string
	ScoringTimeout time.Duration

	TranscribeBaseURL  string
	TranscribeAPIKey   string
	TranscribeModel    string
	TranscribeLanguage string
	TranscribeTimeout  time.Duration

	// RedisAddr is optional: when empty, dialog state lives in process memory.
	RedisAddr     string
	RedisPassword string

	// CuratorReplyTTL bounds how long a forwarded question can still be
	// answered by replying to it.
	CuratorReplyTTL time.Duration

	OutboxWorkers     int
	OutboxMaxAttempts int
	OutboxBackoff     time.Duration

	LogLevel    string
	Environment string

	CronSpecCorrelationSweep string
	CronSpecReviewReminder   string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPListenAddr = os.Getenv("HTTP_LISTEN_ADDR")
	if cfg.HTTPListenAddr == "" {
		cfg.HTTPListenAddr = ":8080"
	}

	cfg.ScoringBaseURL = os.Getenv("SCORING_BASE_URL")
	if cfg.ScoringBaseURL == "" {
		return nil, fmt.Errorf("SCORING_BASE_URL is not set")
	}
	cfg.ScoringAPIKey = os.Getenv("SCORING_API_KEY")
	cfg.ScoringModel = os.Getenv("SCORING_MODEL")
	if cfg.ScoringModel == "" {
		cfg.ScoringModel = "gpt-4o-mini"
	}
	var err error
	cfg.ScoringTimeout, err = durationEnv("SCORING_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.TranscribeBaseURL = os.Getenv("TRANSCRIBE_BASE_URL")
	if cfg.TranscribeBaseURL == "" {
		// Same gateway by default.
		cfg.TranscribeBaseURL = cfg.ScoringBaseURL
	}
	cfg.TranscribeAPIKey = os.Getenv("TRANSCRIBE_API_KEY")
	if cfg.TranscribeAPIKey == "" {
		cfg.TranscribeAPIKey = cfg.ScoringAPIKey
	}
	cfg.TranscribeModel = os.Getenv("TRANSCRIBE_MODEL")
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "whisper-1"
	}
	cfg.TranscribeLanguage = os.Getenv("TRANSCRIBE_LANGUAGE")
	if cfg.TranscribeLanguage == "" {
		cfg.TranscribeLanguage = "ru"
	}
	cfg.TranscribeTimeout, err = durationEnv("TRANSCRIBE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.CuratorReplyTTL, err = durationEnv("CURATOR_REPLY_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.OutboxWorkers, err = intEnv("OUTBOX_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cfg.OutboxMaxAttempts, err = intEnv("OUTBOX_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	cfg.OutboxBackoff, err = durationEnv("OUTBOX_BACKOFF", 3*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecCorrelationSweep = os.Getenv("CRON_SPEC_CORRELATION_SWEEP")
	if cfg.CronSpecCorrelationSweep == "" {
		cfg.CronSpecCorrelationSweep = "*/30 * * * *" // Default: every 30 minutes
	}

	cfg.CronSpecReviewReminder = os.Getenv("CRON_SPEC_REVIEW_REMINDER")
	if cfg.CronSpecReviewReminder == "" {
		cfg.CronSpecReviewReminder = "0 10 * * *" // Default: 10:00 AM daily
	}

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
