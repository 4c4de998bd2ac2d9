// Package config loads process configuration from the environment and the
// governance policy from a YAML file.
package config

import "os"

// Config holds server configuration.
type Config struct {
	Port             string
	LogLevel         string
	DBDriver         string // "postgres", "sqlite" or "memory"
	DatabaseURL      string
	RedisAddr        string
	WebhookToken     string
	PolicyPath       string
	JWTSecret        string
	GatewayURL       string
	NotifyWebhookURL string
	Environment      string
	OTelEnabled      bool
	OTelEndpoint     string
	OTelInsecure     bool
}

// Load reads configuration from environment variables, with development
// defaults for everything except the webhook token.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && driver == "postgres" {
		dbURL = "postgres://trustcore@localhost:5432/trustcore?sslmode=disable"
	}
	if dbURL == "" && driver == "sqlite" {
		dbURL = "trustcore.db"
	}

	policyPath := os.Getenv("POLICY_PATH")
	if policyPath == "" {
		policyPath = "policy.yaml"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DBDriver:         driver,
		DatabaseURL:      dbURL,
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		WebhookToken:     os.Getenv("WEBHOOK_TOKEN"),
		PolicyPath:       policyPath,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		GatewayURL:       os.Getenv("GATEWAY_URL"),
		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		Environment:      env,
		OTelEnabled:      os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:     otelEndpoint,
		OTelInsecure:     os.Getenv("OTEL_INSECURE") == "true",
	}
}
