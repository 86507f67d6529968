package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment      string
	Storage          string
	DBDSN            string
	HTTPAddr         string
	AllowedOrigins   []string
	TelegramToken    string
	SweepSchedule    string
	TrainingDuration time.Duration
	SettingsCacheTTL time.Duration
	AutoMigrate      bool
	BootstrapAdmin   string // имя админа, создаваемого при пустой базе
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:    getEnvOrDefault("ENV", "development"),
		Storage:        getEnvOrDefault("STORAGE", StoragePostgres),
		DBDSN:          os.Getenv("DB_DSN"),
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		SweepSchedule:  getEnvOrDefault("SWEEP_SCHEDULE", "@every 1m"),
		BootstrapAdmin: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN")),
	}

	var err error
	if cfg.TrainingDuration, err = parseDuration("TRAINING_DURATION", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SettingsCacheTTL, err = parseDuration("SETTINGS_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = parseBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
