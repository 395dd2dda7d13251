package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

const defaultOpenAIModel = "gpt-5-mini"

// FromEnv builds the full configuration from environment variables.
// Missing required variables fail fast with a descriptive error; the
// caller is expected to exit(1) on failure.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Queue:    DefaultQueueConfig(),
		Inline:   DefaultInlineConfig(),
	}

	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("APP_ENV must be 'dev' or 'prod', got %q", cfg.Env)
	}

	dbURL, err := resolveDatabaseURL()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = dbURL

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.Telegram = TelegramConfig{
		Token:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		Username: os.Getenv("TELEGRAM_BOT_USERNAME"),
		APIURL:   os.Getenv("TELEGRAM_API_URL"),
	}
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.Telegram.Username == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_USERNAME is required")
	}

	cfg.OpenAI = OpenAIConfig{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  getEnv("OPENAI_MODEL", defaultOpenAIModel),
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	cfg.ObjectStore = ObjectStoreConfig{
		EndpointURL:     os.Getenv("AWS_ENDPOINT_URL_S3"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Bucket:          os.Getenv("BUCKET_NAME"),
		Region:          getEnv("AWS_REGION", "auto"),
	}

	cfg.IdentityHashSalt = os.Getenv("IDENTITY_HASH_SALT")
	if cfg.IdentityHashSalt == "" {
		return nil, fmt.Errorf("IDENTITY_HASH_SALT is required")
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid WORKER_COUNT %q", v)
		}
		cfg.Queue.WorkerCount = n
	}

	return cfg, nil
}

// resolveDatabaseURL accepts DATABASE_URL directly, or derives one from the
// Supabase convention (SUPABASE_URL + SUPABASE_DB_PASSWORD).
func resolveDatabaseURL() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	password := os.Getenv("SUPABASE_DB_PASSWORD")
	if supabaseURL == "" || password == "" {
		return "", fmt.Errorf("DATABASE_URL or SUPABASE_URL+SUPABASE_DB_PASSWORD is required")
	}

	u, err := url.Parse(supabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	// Supabase project ref is the first label of the host; the pooled Postgres
	// endpoint lives at db.<ref>.supabase.co.
	return fmt.Sprintf("postgres://postgres:%s@db.%s:5432/postgres?sslmode=require",
		url.QueryEscape(password), u.Host), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
