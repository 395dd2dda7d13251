package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://bot:pw@localhost:5432/bot")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:test-token")
	t.Setenv("TELEGRAM_BOT_USERNAME", "CalorieTrackAI_bot")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("IDENTITY_HASH_SALT", "salt-for-tests")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.False(t, cfg.IsProd())
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "gpt-5-mini", cfg.OpenAI.Model)
	assert.Equal(t, "auto", cfg.ObjectStore.Region)
	assert.Equal(t, "estimate_jobs", cfg.Queue.QueueName)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.InDelta(t, 5.0, cfg.Inline.AccuracyTolerancePct, 0.001)
}

func TestFromEnvMissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		unset  string
		errMsg string
	}{
		{"no database", "DATABASE_URL", "DATABASE_URL or SUPABASE_URL"},
		{"no redis", "REDIS_URL", "REDIS_URL is required"},
		{"no bot token", "TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN is required"},
		{"no bot username", "TELEGRAM_BOT_USERNAME", "TELEGRAM_BOT_USERNAME is required"},
		{"no openai key", "OPENAI_API_KEY", "OPENAI_API_KEY is required"},
		{"no hash salt", "IDENTITY_HASH_SALT", "IDENTITY_HASH_SALT is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFromEnvSupabaseFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "https://abcd1234.supabase.co")
	t.Setenv("SUPABASE_DB_PASSWORD", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseURL, "db.abcd1234.supabase.co")
	assert.Contains(t, cfg.DatabaseURL, "s3cret")
}

func TestFromEnvInvalidAppEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "staging")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV")
}

func TestFromEnvWorkerCountOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_COUNT", "12")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Queue.WorkerCount)

	t.Setenv("WORKER_COUNT", "zero")
	_, err = FromEnv()
	require.Error(t, err)
}
