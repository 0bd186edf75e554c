package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE"`

	ProductsTable    string        `envconfig:"PRODUCTS_TABLE" default:"products"`
	OrdersTable      string        `envconfig:"ORDERS_TABLE" default:"orders"`
	UsersTable       string        `envconfig:"USERS_TABLE" default:"users"`
	UserEmailsTable  string        `envconfig:"USER_EMAILS_TABLE" default:"user_emails"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`

	OrdersQueueURL   string `envconfig:"ORDERS_QUEUE_URL"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"Storefront"`
	MailFrom         string `envconfig:"MAIL_FROM" default:"orders@example.com"`

	IdentityBaseURL string `envconfig:"IDENTITY_BASE_URL" default:"https://api.clerk.com/v1"`
	IdentitySecret  string `envconfig:"IDENTITY_SECRET_KEY"`

	PinningBaseURL string `envconfig:"PINNING_BASE_URL" default:"https://api.pinata.cloud"`
	PinningJWT     string `envconfig:"PINNING_JWT"`

	UpstreamTimeout   time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	PostCommitTimeout time.Duration `envconfig:"POST_COMMIT_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// StrictStatusTransitions only lets orders move forward along
	// pending -> processing -> shipped -> delivered.
	StrictStatusTransitions bool `envconfig:"ORDER_STRICT_TRANSITIONS" default:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
