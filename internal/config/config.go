package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	CoinGeckoAPIKey  string `env:"COINGECKO_API_KEY"`
	CoinGeckoBaseURL string `env:"COINGECKO_BASE_URL" validate:"required,url"`
	CoinID           string `env:"COIN_ID" validate:"required"`
	RequestTimeout   int    `env:"REQUEST_TIMEOUT" validate:"gt=0"` // seconds
	RequestsPerSec   int    `env:"REQUESTS_PER_SEC" validate:"gt=0"`

	ScoringURL     string `env:"SCORING_URL" validate:"omitempty,url"`
	ScoringTimeout int    `env:"SCORING_TIMEOUT" validate:"gt=0"` // seconds

	LedgerBackend string `env:"LEDGER_BACKEND" validate:"oneof=memory postgres"`
	DBHost        string `env:"DB_HOST" validate:"required_if=LedgerBackend postgres"`
	DBPort        string `env:"DB_PORT"`
	DBUser        string `env:"DB_USER"`
	DBPassword    string `env:"DB_PASSWORD"`
	DBName        string `env:"DB_NAME" validate:"required_if=LedgerBackend postgres"`
	DBSSLMode     string `env:"DB_SSLMODE"`

	LogLevel         string `env:"LOG_LEVEL"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	AutoRunInterval  int    `env:"AUTO_RUN_INTERVAL" validate:"gte=0"` // minutes, 0 disables
	MetricsAddr      string `env:"METRICS_ADDR"`
}

var validate = validator.New()

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from the process environment without validating it
func FromEnv() *Config {
	var cfg Config

	cfg.CoinGeckoAPIKey = os.Getenv("COINGECKO_API_KEY")
	cfg.CoinGeckoBaseURL = getEnvWithDefault("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3")
	cfg.CoinID = getEnvWithDefault("COIN_ID", "bitcoin")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 10)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)

	cfg.ScoringURL = os.Getenv("SCORING_URL")
	cfg.ScoringTimeout = getEnvIntWithDefault("SCORING_TIMEOUT", 5)

	cfg.LedgerBackend = strings.ToLower(getEnvWithDefault("LEDGER_BACKEND", "postgres"))
	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.AutoRunInterval = getEnvIntWithDefault("AUTO_RUN_INTERVAL", 0)
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return &cfg
}

// Validate checks field constraints and reports every failing field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// RequestTimeoutDuration returns the market data timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// ScoringTimeoutDuration returns the model service timeout
func (c *Config) ScoringTimeoutDuration() time.Duration {
	return time.Duration(c.ScoringTimeout) * time.Second
}

// AutoRunEvery returns the auto-run period, zero when disabled
func (c *Config) AutoRunEvery() time.Duration {
	return time.Duration(c.AutoRunInterval) * time.Minute
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
