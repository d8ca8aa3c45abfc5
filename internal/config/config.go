package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Server
	ApiPort        string
	ServiceApiPort string

	// Service Desk (Atlassian)
	ServiceDeskBaseURL  string // e.g. https://example.atlassian.net; overridable for tests
	ServiceDeskUsername string
	ServiceDeskAPIKey   string // static secret; empty when the exchange backend is used

	// Secret exchange (short-lived credential fetch)
	SecretsExchangeURL  string
	SecretsExchangeKey  string
	SecretsAssertionTTL time.Duration
	SecretsCacheTTL     time.Duration

	// FriendlyCaptcha
	CaptchaEnabled       bool
	CaptchaAPIKey        string
	CaptchaSitekey       string
	CaptchaSiteVerifyURL string

	// Form catalog
	FormDataPath     string
	FormDataS3Bucket string
	FormDataS3Key    string

	// AWS (S3 catalog fetch, SES email)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string

	// Email
	EmailBackend    string // "smtp" or "ses"
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// Submission flow
	DeferredVerification bool
	VerifyBaseURL        string // base for emailed verification links
	ThankYouURL          string // generic post-verification destination
	DefaultSourceOrigin  string
	PendingTTL           time.Duration
	NameFieldID          string
	DescriptionFieldIDs  []string

	// Alerts
	AlertWebhookURL string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "webforms")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")

	cfg.ServiceDeskUsername, err = getRequiredEnv("SERVICE_DESK_USERNAME")
	if err != nil {
		return nil, err
	}
	domain := getEnv("SERVICE_DESK_DOMAIN", "")
	cfg.ServiceDeskBaseURL = getEnv("SERVICE_DESK_BASE_URL", "")
	if cfg.ServiceDeskBaseURL == "" {
		if domain == "" {
			return nil, fmt.Errorf("either SERVICE_DESK_BASE_URL or SERVICE_DESK_DOMAIN must be set")
		}
		cfg.ServiceDeskBaseURL = "https://" + domain
	}
	cfg.ServiceDeskAPIKey = getEnv("SERVICE_DESK_API_KEY", "")

	cfg.SecretsExchangeURL = getEnv("SECRETS_EXCHANGE_URL", "")
	cfg.SecretsExchangeKey = getEnv("SECRETS_EXCHANGE_KEY", "")
	if cfg.ServiceDeskAPIKey == "" && cfg.SecretsExchangeURL == "" {
		return nil, fmt.Errorf("no service desk credential source: set SERVICE_DESK_API_KEY or SECRETS_EXCHANGE_URL")
	}

	cfg.CaptchaAPIKey = getEnv("FRIENDLY_CAPTCHA_API_KEY", "")
	cfg.CaptchaSitekey = getEnv("FRIENDLY_CAPTCHA_SITEKEY", "")
	cfg.CaptchaSiteVerifyURL = getEnv("FRIENDLY_CAPTCHA_SITEVERIFY_URL", "https://global.frcapi.com/api/v2/captcha/siteverify")
	cfg.CaptchaEnabled, err = strconv.ParseBool(getEnv("CAPTCHA_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTCHA_ENABLED: %w", err)
	}

	cfg.FormDataPath = getEnv("FORM_DATA_PATH", "form_data.json")
	cfg.FormDataS3Bucket = getEnv("FORM_DATA_S3_BUCKET", "")
	cfg.FormDataS3Key = getEnv("FORM_DATA_S3_KEY", "form_data.json")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "us-east-1")

	cfg.EmailBackend = getEnv("EMAIL_BACKEND", "smtp")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("VERIFICATION_FROM_EMAIL_ADDR", "noreply@webforms.example.com")

	cfg.DeferredVerification, err = strconv.ParseBool(getEnv("DEFERRED_VERIFICATION", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFERRED_VERIFICATION: %w", err)
	}
	cfg.VerifyBaseURL = getEnv("VERIFY_BASE_URL", "")
	if cfg.DeferredVerification && cfg.VerifyBaseURL == "" {
		return nil, fmt.Errorf("VERIFY_BASE_URL is required when DEFERRED_VERIFICATION is enabled")
	}
	cfg.ThankYouURL = getEnv("THANK_YOU_URL", "https://www.linaro.org/thank-you")
	cfg.DefaultSourceOrigin = getEnv("DEFAULT_SOURCE_ORIGIN", "")
	cfg.NameFieldID = getEnv("NAME_FIELD_ID", "customfield_13155")
	cfg.DescriptionFieldIDs = []string{
		getEnv("DESCRIPTION_FIELD_ID", "description"),
		getEnv("DESCRIPTION_FALLBACK_FIELD_ID", "customfield_13365"),
	}

	cfg.AlertWebhookURL = getEnv("ALERT_WEBHOOK_URL", "")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	assertionTTLSeconds, err := strconv.ParseInt(getEnv("SECRETS_ASSERTION_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SECRETS_ASSERTION_TTL_SECONDS: %w", err)
	}
	cfg.SecretsAssertionTTL = time.Duration(assertionTTLSeconds) * time.Second

	secretsCacheTTLSeconds, err := strconv.ParseInt(getEnv("SECRETS_CACHE_TTL_SECONDS", "300"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SECRETS_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.SecretsCacheTTL = time.Duration(secretsCacheTTLSeconds) * time.Second

	pendingTTLHours, err := strconv.ParseInt(getEnv("PENDING_TTL_HOURS", "72"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_TTL_HOURS: %w", err)
	}
	cfg.PendingTTL = time.Duration(pendingTTLHours) * time.Hour

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
