// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is populated from environment variables. cmd binaries call
// godotenv.Load first so a local .env works in development.
type Config struct {
	ListenAddr string

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	SMTPURL   string
	FromEmail string
	FromName  string

	AMQPURL   string
	RedisAddr string

	JWTSecret     string
	PublicBaseURL string

	BatchSize         int
	MaxAttempts       int
	ClaimTTL          time.Duration
	SchedulerInterval time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBUser: getEnv("DB_USER", "postgres"),
		DBPass: getEnv("DB_PASSWORD", "postgres"),
		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBName: getEnv("DB_NAME", "craftsquare"),

		SMTPURL:   getEnv("SMTP_URL", ""),
		FromEmail: getEnv("FROM_EMAIL", "deals@craftsquare.io"),
		FromName:  getEnv("FROM_NAME", "Craftsquare Deals"),

		AMQPURL:   getEnv("AMQP_URL", ""),
		RedisAddr: getEnv("REDIS_ADDR", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "https://craftsquare.io"),

		BatchSize:         getEnvInt("SEND_BATCH_SIZE", 100),
		MaxAttempts:       getEnvInt("SEND_MAX_ATTEMPTS", 5),
		ClaimTTL:          getEnvDuration("SEND_CLAIM_TTL", 2*time.Minute),
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
