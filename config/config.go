package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Document store
	MongoURI string
	MongoDB  string

	// Redis
	RedisURL string

	// JWT & Security
	JWTSecret          string
	JWTExpirationHours int

	// CORS
	CORSAllowedOrigins []string

	// List & search tuning
	PageSize          int
	MaxSearchResults  int
	FallbackThreshold int
	FallbackScanLimit int
	DefaultRegion     string
	DebounceWindow    time.Duration

	// Batch tuning
	BatchChunkSize  int
	BatchChunkDelay time.Duration

	// Messaging
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Jobs
	CallbackDigestSpec string
	CallbackDigestTo   string

	// Error tracking
	SentryDSN string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// Document store
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "leadconsole"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		// JWT
		JWTSecret:          getEnv("JWT_SECRET", "change-this-in-production"),
		JWTExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),

		// CORS
		CORSAllowedOrigins: []string{getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")},

		// List & search
		PageSize:          getEnvAsInt("PAGE_SIZE", 25),
		MaxSearchResults:  getEnvAsInt("MAX_SEARCH_RESULTS", 100),
		FallbackThreshold: getEnvAsInt("SEARCH_FALLBACK_THRESHOLD", 3),
		FallbackScanLimit: getEnvAsInt("SEARCH_FALLBACK_SCAN_LIMIT", 200),
		DefaultRegion:     getEnv("PHONE_DEFAULT_REGION", "US"),
		DebounceWindow:    getEnvAsDuration("VIEW_DEBOUNCE_WINDOW", 250*time.Millisecond),

		// Batch
		BatchChunkSize:  getEnvAsInt("BATCH_CHUNK_SIZE", 5),
		BatchChunkDelay: getEnvAsDuration("BATCH_CHUNK_DELAY", 200*time.Millisecond),

		// Messaging
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "noreply@leadconsole.io"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Lead Console"),

		// Jobs
		CallbackDigestSpec: getEnv("CALLBACK_DIGEST_SPEC", "0 7 * * *"),
		CallbackDigestTo:   getEnv("CALLBACK_DIGEST_TO", ""),

		// Error tracking
		SentryDSN: getEnv("SENTRY_DSN", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
