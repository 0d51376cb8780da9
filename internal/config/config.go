package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"homework_bot/internal/logging"
	"homework_bot/internal/poller"
	"homework_bot/internal/practicum"
)

const (
	EnvPracticumToken = "TOKEN_PRACTICUM"
	EnvTelegramToken  = "TOKEN_TELEGRAM"
	EnvChatID         = "CHAT_ID"
)

type Config struct {
	PracticumToken string
	TelegramToken  string
	ChatID         string

	Endpoint       string
	RetryTime      time.Duration
	PollSchedule   string // cron-выражение, если задано, заменяет RetryTime
	FromOffset     time.Duration
	HTTPTimeout    time.Duration
	Port           int
	Debug          bool
	LogLevel       string
	ErrorCacheSize int
	TelegramRate   float64
}

// New читает конфигурацию из .env и переменных окружения.
// Отсутствие обязательных токенов здесь не ошибка, см. CheckTokens.
func New(log zerolog.Logger) (*Config, error) {
	// Загружаем .env файл, если он есть
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Msg(".env file not found, using environment only")
		} else {
			log.Warn().Err(err).Msg("Warning: .env file not loaded")
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		PracticumToken: os.Getenv(EnvPracticumToken),
		TelegramToken:  os.Getenv(EnvTelegramToken),
		ChatID:         strings.TrimSpace(os.Getenv(EnvChatID)),
		Endpoint:       getEnv("PRACTICUM_ENDPOINT", practicum.DefaultEndpoint),
		PollSchedule:   strings.TrimSpace(os.Getenv("POLL_SCHEDULE")),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
	}

	var err error
	if cfg.RetryTime, err = getEnvAsDuration("RETRY_TIME", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.FromOffset, err = getEnvAsDuration("FROM_OFFSET", 5*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Port, err = getEnvAsInt("PORT", 5000); err != nil {
		return nil, err
	}
	if cfg.ErrorCacheSize, err = getEnvAsInt("ERROR_CACHE_SIZE", 128); err != nil {
		return nil, err
	}
	if cfg.TelegramRate, err = getEnvAsFloat("TELEGRAM_RATE", 1); err != nil {
		return nil, err
	}
	if debugStr := os.Getenv("BOT_DEBUG"); debugStr != "" {
		if cfg.Debug, err = strconv.ParseBool(debugStr); err != nil {
			return nil, fmt.Errorf("BOT_DEBUG: %w", err)
		}
	}

	if cfg.RetryTime <= 0 {
		return nil, fmt.Errorf("RETRY_TIME must be positive")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT: %d out of range", cfg.Port)
	}
	if cfg.ErrorCacheSize <= 0 {
		return nil, fmt.Errorf("ERROR_CACHE_SIZE must be positive")
	}
	if cfg.TelegramRate <= 0 {
		return nil, fmt.Errorf("TELEGRAM_RATE must be positive")
	}
	if _, err := cfg.Schedule(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CheckTokens проверяет наличие переменных окружения,
// без которых программа не может работать.
func (c *Config) CheckTokens(log zerolog.Logger) bool {
	required := []struct {
		name  string
		value string
	}{
		{EnvPracticumToken, c.PracticumToken},
		{EnvTelegramToken, c.TelegramToken},
		{EnvChatID, c.ChatID},
	}
	for _, r := range required {
		if r.value == "" {
			logging.Critical(log).
				Str("var", r.name).
				Msgf("Отсутствует обязательная переменная окружения: %s", r.name)
			return false
		}
	}
	return true
}

// Schedule returns when the next poll cycle starts after the previous one ends.
func (c *Config) Schedule() (cron.Schedule, error) {
	if c.PollSchedule == "" {
		return poller.Every(c.RetryTime), nil
	}
	s, err := cron.ParseStandard(c.PollSchedule)
	if err != nil {
		return nil, fmt.Errorf("POLL_SCHEDULE: %w", err)
	}
	// Например "0 0 30 2 *": разбирается, но никогда не срабатывает
	if s.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("POLL_SCHEDULE: %q never fires", c.PollSchedule)
	}
	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return f, nil
}

// getEnvAsDuration принимает как "5m", так и голое число секунд.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(value); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}
