package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`
	LogMode string `envconfig:"LOG_MODE" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// APIToken guards every route except /health and /webhook.
	APIToken string `envconfig:"API_TOKEN"`
	Owner    string `envconfig:"OWNER" default:"default"`

	OpenAIAPIKey         string        `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel       string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions  int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingConcurrency int           `envconfig:"EMBEDDING_CONCURRENCY" default:"4"`
	EmbeddingTimeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	ChatModel            string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ReplyTimeout         time.Duration `envconfig:"REPLY_TIMEOUT" default:"45s"`
	WebhookTimeout       time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"60s"`

	WhatsAppToken         string        `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string        `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAPIVersion    string        `envconfig:"WHATSAPP_API_VERSION" default:"v21.0"`
	WhatsAppVerifyToken   string        `envconfig:"WHATSAPP_VERIFY_TOKEN"`
	SendTimeout           time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	ExternalDBTimeout time.Duration `envconfig:"EXTERNAL_DB_TIMEOUT" default:"30s"`

	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionMaxMessages int           `envconfig:"SESSION_MAX_MESSAGES" default:"10"`
	SessionMaxUsers    int           `envconfig:"SESSION_MAX_USERS" default:"10000"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"supportdesk-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Zero disables the background campaign worker.
	CampaignWorkerInterval time.Duration `envconfig:"CAMPAIGN_WORKER_INTERVAL" default:"0s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("SUPPORTDESK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}


func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasWhatsApp() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneNumberID != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasCampaignWorker() bool {
	return c.CampaignWorkerInterval > 0
}
