package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// APIToken protects the HTTP surface with a single bearer token.
	// User-level auth lives in the upstream platform, not here.
	APIToken string `envconfig:"API_TOKEN"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"studium-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	GoogleAPIKey     string `envconfig:"GOOGLE_API_KEY"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`

	OpenRouterBaseURL  string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterSiteURL  string `envconfig:"OPENROUTER_SITE_URL"`
	OpenRouterSiteName string `envconfig:"OPENROUTER_SITE_NAME" default:"Studium"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	// Indexing worker
	IndexerPollInterval string `envconfig:"INDEXER_POLL_INTERVAL" default:"5s"`
	IndexerDisabled     bool   `envconfig:"INDEXER_DISABLED" default:"false"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("STUDIUM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
