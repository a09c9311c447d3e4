package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the reminder daemon.
type Config struct {
	DatabaseURL string

	// TelegramToken and TelegramChatID select the Telegram transport;
	// with an empty token notifications go to the log instead.
	TelegramToken  string
	TelegramChatID int64

	// NotificationsEnabled false mirrors a revoked platform permission:
	// every schedule call fails with an authorization error.
	NotificationsEnabled bool

	// RefreshInterval is the minimum spacing of the periodic background
	// wake that reconciles the notification buffers.
	RefreshInterval time.Duration

	// DispatchInterval is how often due notifications are fired.
	DispatchInterval time.Duration

	// ArchiveAfterDays is the grace period before completed tasks are
	// swept into the archive.
	ArchiveAfterDays int
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TelegramToken:        strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		TelegramChatID:       parseInt64(os.Getenv("TELEGRAM_CHAT_ID")),
		NotificationsEnabled: parseBool(os.Getenv("NOTIFICATIONS_ENABLED"), true),
		RefreshInterval:      parseDuration(os.Getenv("REFRESH_INTERVAL"), 12*time.Hour),
		DispatchInterval:     parseDuration(os.Getenv("DISPATCH_INTERVAL"), time.Minute),
		ArchiveAfterDays:     parseInt(os.Getenv("ARCHIVE_AFTER_DAYS"), 7),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "task_reminder.db"
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseInt64(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseBool(raw string, fallback bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}
