package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WhatsApp Cloud API
	WhatsAppAPIBaseURL   string
	WhatsAppAppSecret    string
	WhatsAppSendTimeout  time.Duration
	WhatsAppSendRetries  int
	ChannelCacheTTL      time.Duration
	DefaultCountryPrefix string

	// AI decision engine
	OpenAIAPIKey     string
	OpenAIModel      string
	DecisionTimeout  time.Duration
	HistoryWindow    int
	ContextWindowCap int

	// Internal API auth
	InternalJWTSecret string

	// Escalation notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	AWSRegion         string

	// Reminder batch
	ReminderBatchLimit int
	DefaultTimezone    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WhatsAppAPIBaseURL:   getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppAppSecret:    getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppSendTimeout:  getEnvAsDuration("WHATSAPP_SEND_TIMEOUT", 10*time.Second),
		WhatsAppSendRetries:  getEnvAsInt("WHATSAPP_SEND_RETRIES", 3),
		ChannelCacheTTL:      getEnvAsDuration("CHANNEL_CACHE_TTL", 5*time.Minute),
		DefaultCountryPrefix: getEnv("DEFAULT_COUNTRY_PREFIX", "55"),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DecisionTimeout:  getEnvAsDuration("DECISION_TIMEOUT", 20*time.Second),
		HistoryWindow:    getEnvAsInt("HISTORY_WINDOW", 8),
		ContextWindowCap: getEnvAsInt("CONTEXT_WINDOW_CAP", 10),

		InternalJWTSecret: getEnv("INTERNAL_JWT_SECRET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinvia"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Clinvia"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),

		ReminderBatchLimit: getEnvAsInt("REMINDER_BATCH_LIMIT", 500),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
