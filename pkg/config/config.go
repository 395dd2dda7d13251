// Package config provides environment-driven configuration for the bot backend.
package config

// Config is the umbrella configuration object returned by FromEnv()
// and passed through the dispatcher and worker wiring.
type Config struct {
	// Env is the deployment environment ("dev" or "prod").
	Env string

	// HTTPPort is the listen port for the API server.
	HTTPPort string

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// RedisURL is the Redis connection string (queue + permission notices).
	RedisURL string

	// Telegram holds bot API credentials and identity.
	Telegram TelegramConfig

	// OpenAI holds vision-model credentials and model selection.
	OpenAI OpenAIConfig

	// ObjectStore holds S3-compatible object store credentials.
	ObjectStore ObjectStoreConfig

	// IdentityHashSalt is the process-wide secret used for chat/user hashing.
	// Never logged.
	IdentityHashSalt string

	// Queue and worker pool configuration.
	Queue *QueueConfig

	// Inline pipeline tunables.
	Inline *InlineConfig
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	// Token is the bot token issued by BotFather.
	Token string
	// Username is the bot's @username, used for mention matching.
	Username string
	// APIURL overrides the Bot API base URL (tests / local bot-api server).
	APIURL string
}

// OpenAIConfig holds vision model settings.
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string
	// Model is the vision-capable model used for estimation.
	Model string
}

// ObjectStoreConfig holds S3-compatible object store settings (Tigris).
type ObjectStoreConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// IsProd reports whether the process runs in the production environment.
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
