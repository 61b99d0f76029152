package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Text generation providers
	LLMProvider          string
	LLMFallbackProviders []string
	LLMTimeout           time.Duration
	LLMRetryAttempts     int
	GoogleAPIKey         string
	GeminiModelID        string
	OpenAIAPIKey         string
	OpenAIModel          string
	AnthropicAPIKey      string
	AnthropicModel       string
	BedrockModelID       string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Listings / area data provider
	PropertyAPIBaseURL string
	PropertyAPITimeout time.Duration
	PropertyCacheTTL   time.Duration

	// Pending-question ledger
	PendingQuestionStore  string
	PendingQuestionTTL    time.Duration
	PendingQuestionsTable string

	// Counterpart notifications
	NotificationQueueURL string
	UseMemoryQueue       bool
	EmailProvider        string
	SendGridAPIKey       string
	EmailFromAddress     string
	EmailFromName        string

	ArchiveBucket          string
	SessionCleanupEnabled  bool
	SessionCleanupInterval time.Duration

	ServiceJWTSecret   string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:          strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		LLMFallbackProviders: getEnvAsList("LLM_FALLBACK_PROVIDERS", []string{"openai", "anthropic"}),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 15*time.Second),
		LLMRetryAttempts:     getEnvAsInt("LLM_RETRY_ATTEMPTS", 1),
		GoogleAPIKey:         getEnv("GOOGLE_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.0-flash"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		PropertyAPIBaseURL: strings.TrimRight(getEnv("PROPERTY_API_BASE_URL", ""), "/"),
		PropertyAPITimeout: getEnvAsDuration("PROPERTY_API_TIMEOUT", 10*time.Second),
		PropertyCacheTTL:   getEnvAsDuration("PROPERTY_CACHE_TTL", time.Hour),

		PendingQuestionStore:  strings.ToLower(strings.TrimSpace(getEnv("PENDING_QUESTION_STORE", "redis"))),
		PendingQuestionTTL:    getEnvAsDuration("PENDING_QUESTION_TTL", 24*time.Hour),
		PendingQuestionsTable: getEnv("PENDING_QUESTIONS_TABLE", "pending_questions"),

		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		EmailProvider:        strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", "no-reply@maison.example"),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "MaiSON"),

		ArchiveBucket:          getEnv("ARCHIVE_BUCKET", ""),
		SessionCleanupEnabled:  getEnvAsBool("SESSION_CLEANUP_ENABLED", true),
		SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Hour),

		ServiceJWTSecret:   getEnv("SERVICE_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
