package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/database"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/sender"
)

// Config holds all configuration for the fulfillment service.
type Config struct {
	Env  string
	Port string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	MercadoPagoToken           string
	MercadoPagoAPIBase         string
	MercadoPagoNotificationURL string
	MercadoPagoSuccessURL      string
	MercadoPagoFailureURL      string

	StripeAPIKey        string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	DownloadBucket string
	LinkTTL        time.Duration
	LockStaleAfter time.Duration

	EmailProvider string
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	ResendAPIKey  string
	ResendAPIBase string
	EmailFrom     string
	EmailReplyTo  string

	RedisURL       string
	CatalogTTL     time.Duration
	CatalogBackend string
	CatalogTable   string

	FulfillmentSNSTopicARN string
	NotificationQueueURL   string
	KafkaBrokers           []string
	KafkaPaymentTopic      string
	KafkaGroupID           string
	AdminJWTSecret         string
	CORSAllowedOrigins     []string
	UseSecrets             bool
}

// LoadConfig reads configuration from the environment (and .env when present)
// with an optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8092"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "America/Sao_Paulo"),

		MercadoPagoToken:           os.Getenv("MP_ACCESS_TOKEN"),
		MercadoPagoAPIBase:         os.Getenv("MP_API_BASE"),
		MercadoPagoNotificationURL: os.Getenv("MP_NOTIFICATION_URL"),
		MercadoPagoSuccessURL:      getEnv("MP_SUCCESS_URL", "http://localhost:3000/sucesso.html"),
		MercadoPagoFailureURL:      getEnv("MP_FAILURE_URL", "http://localhost:3000/"),

		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/sucesso?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/"),

		DownloadBucket: os.Getenv("DOWNLOAD_BUCKET"),
		LinkTTL:        getSeconds("LINK_TTL_SECONDS", 604800),
		LockStaleAfter: getSeconds("LOCK_STALE_AFTER_SECONDS", 300),

		EmailProvider: getEnv("EMAIL_PROVIDER", "smtp"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		ResendAPIBase: os.Getenv("RESEND_API_BASE"),
		EmailFrom:     os.Getenv("EMAIL_FROM"),
		EmailReplyTo:  os.Getenv("EMAIL_REPLY_TO"),

		RedisURL:       os.Getenv("REDIS_URL"),
		CatalogTTL:     getSeconds("CATALOG_CACHE_TTL_SECONDS", 300),
		CatalogBackend: getEnv("CATALOG_BACKEND", "postgres"),
		CatalogTable:   getEnv("CATALOG_DYNAMO_TABLE", "products"),

		FulfillmentSNSTopicARN: os.Getenv("FULFILLMENT_SNS_TOPIC_ARN"),
		NotificationQueueURL:   os.Getenv("PAYMENT_NOTIFICATION_QUEUE_URL"),
		KafkaBrokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaPaymentTopic:      getEnv("KAFKA_PAYMENT_TOPIC", "payment-notifications"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "fulfillment-service"),
		AdminJWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
		CORSAllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		UseSecrets:             os.Getenv("AWS_USE_SECRETS") == "true",
	}

	if cfg.UseSecrets {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			sm := awspkg.NewSecretsClient(awsCfg)
			if m, err := awspkg.GetSecretMap(context.Background(), sm, "fulfillment/CREDENTIALS"); err == nil {
				cfg.applySecrets(m)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets overrides credentials with non-empty values from m.
func (c *Config) applySecrets(m map[string]string) {
	targets := map[string]*string{
		"POSTGRES_USER":         &c.PostgresUser,
		"POSTGRES_PASSWORD":     &c.PostgresPassword,
		"POSTGRES_DB":           &c.PostgresDB,
		"POSTGRES_HOST":         &c.PostgresHost,
		"POSTGRES_PORT":         &c.PostgresPort,
		"MP_ACCESS_TOKEN":       &c.MercadoPagoToken,
		"STRIPE_API_KEY":        &c.StripeAPIKey,
		"STRIPE_WEBHOOK_SECRET": &c.StripeWebhookSecret,
		"SMTP_PASSWORD":         &c.SMTPPassword,
		"RESEND_API_KEY":        &c.ResendAPIKey,
		"ADMIN_JWT_SECRET":      &c.AdminJWTSecret,
	}
	for key, dst := range targets {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.MercadoPagoToken == "" && c.StripeAPIKey == "" {
		return fmt.Errorf("at least one of MP_ACCESS_TOKEN or STRIPE_API_KEY is required")
	}
	switch c.EmailProvider {
	case "smtp", "resend":
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}
	switch c.CatalogBackend {
	case "postgres", "dynamodb":
	default:
		return fmt.Errorf("unknown CATALOG_BACKEND %q", c.CatalogBackend)
	}
	return nil
}

func (c *Config) Database() database.Settings {
	return database.Settings{
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		DB:       c.PostgresDB,
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		SSLMode:  c.PostgresSSLMode,
		TimeZone: c.PostgresTimeZone,
	}
}

func (c *Config) SMTP() sender.SMTPConfig {
	return sender.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.EmailFrom,
		ReplyTo:  c.EmailReplyTo,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getSeconds(key string, fallback int) time.Duration {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
