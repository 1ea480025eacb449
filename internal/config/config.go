package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config carries everything the process reads from the environment. A .env
// file in the working directory is picked up automatically.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSchema   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL string

	// MOMO (mobile-money collect)
	MomoBaseURL         string
	MomoAPIUser         string
	MomoAPIKey          string
	MomoSubscriptionKey string
	MomoWebhookSecret   string
	MomoCountryCode     string

	// PAYLINK (hosted redirect/charge)
	PaylinkBaseURL       string
	PaylinkSecretKey     string
	PaylinkWebhookHash   string
	PaylinkRedirectURL   string

	PollInterval  time.Duration
	PollLookback  time.Duration
	PollItemDelay time.Duration
	PollBatchSize int

	VerifyRateLimit  int
	VerifyRateWindow time.Duration
}

func Load() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USERNAME", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_DATABASE", "cardflow"),
		DBSchema:   getenv("DB_SCHEMA", "public"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),

		AMQPURL: os.Getenv("AMQP_URL"),

		MomoBaseURL:         getenv("MOMO_BASE_URL", "https://sandbox.momoapi.example.com"),
		MomoAPIUser:         os.Getenv("MOMO_API_USER"),
		MomoAPIKey:          os.Getenv("MOMO_API_KEY"),
		MomoSubscriptionKey: os.Getenv("MOMO_SUBSCRIPTION_KEY"),
		MomoWebhookSecret:   os.Getenv("MOMO_WEBHOOK_SECRET"),
		MomoCountryCode:     getenv("MOMO_COUNTRY_CODE", "233"),

		PaylinkBaseURL:     getenv("PAYLINK_BASE_URL", "https://api.paylink.example.com/v3"),
		PaylinkSecretKey:   os.Getenv("PAYLINK_SECRET_KEY"),
		PaylinkWebhookHash: os.Getenv("PAYLINK_WEBHOOK_HASH"),
		PaylinkRedirectURL: os.Getenv("PAYLINK_REDIRECT_URL"),

		PollInterval:  getduration("POLL_INTERVAL", 2*time.Minute),
		PollLookback:  getduration("POLL_LOOKBACK", 24*time.Hour),
		PollItemDelay: getduration("POLL_ITEM_DELAY", 500*time.Millisecond),
		PollBatchSize: getint("POLL_BATCH_SIZE", 100),

		VerifyRateLimit:  getint("VERIFY_RATE_LIMIT", 10),
		VerifyRateWindow: getduration("VERIFY_RATE_WINDOW", time.Minute),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
