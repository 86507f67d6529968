package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"ENV", "STORAGE", "DB_DSN", "HTTP_ADDR", "CORS_ORIGINS", "TELEGRAM_TOKEN",
		"SWEEP_SCHEDULE", "TRAINING_DURATION", "SETTINGS_CACHE_TTL", "AUTO_MIGRATE", "BOOTSTRAP_ADMIN"} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, time.Hour, cfg.TrainingDuration)
	assert.Equal(t, time.Minute, cfg.SettingsCacheTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("DB_DSN", "postgres://localhost/booking")
	t.Setenv("TRAINING_DURATION", "90m")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BOOTSTRAP_ADMIN", " Trainer ")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 90*time.Minute, cfg.TrainingDuration)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "Trainer", cfg.BootstrapAdmin)
	assert.True(t, cfg.IsProduction())
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{"STORAGE": "postgres", "DB_DSN": ""}},
		{"unknown storage", map[string]string{"STORAGE": "redis"}},
		{"bad duration", map[string]string{"STORAGE": "memory", "TRAINING_DURATION": "soon"}},
		{"negative ttl", map[string]string{"STORAGE": "memory", "SETTINGS_CACHE_TTL": "-1s"}},
		{"bad bool", map[string]string{"STORAGE": "memory", "AUTO_MIGRATE": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
