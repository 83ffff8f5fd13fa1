// Package config provides configuration management for the application.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// Policy extraction API
	APIBaseURL         string
	Enhance            bool
	ValidateExtraction bool
	ApprovedResetDelay time.Duration

	// AWS
	AWSRegion        string
	S3Bucket         string
	S3IncomingPrefix string
	S3ArchivePrefix  string

	// Database (ingestion ledger)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// SES
	SESSenderEmail     string
	ReviewNotifyEmails []string
	ReviewDashboardURL string

	// Application
	Port     string
	Stage    string
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{
		// Policy extraction API
		APIBaseURL:         strings.TrimRight(getEnv("POLICY_API_BASE_URL", "http://localhost:8000"), "/"),
		Enhance:            getEnvBool("POLICY_ENHANCE", false),
		ValidateExtraction: getEnvBool("POLICY_VALIDATE_EXTRACTION", true),
		ApprovedResetDelay: getEnvDuration("APPROVED_RESET_DELAY", 3*time.Second),

		// AWS
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:         getEnv("S3_BUCKET", "lender-policy-pdfs-dev"),
		S3IncomingPrefix: getEnv("S3_INCOMING_PREFIX", "policies/incoming/"),
		S3ArchivePrefix:  getEnv("S3_ARCHIVE_PREFIX", "policies/processed/"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBName:     getEnv("DB_NAME", "policy_review"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),

		// SES
		SESSenderEmail:     getEnv("SES_SENDER_EMAIL", ""),
		ReviewNotifyEmails: getEnvList("REVIEW_NOTIFY_EMAILS"),
		ReviewDashboardURL: getEnv("REVIEW_DASHBOARD_URL", "http://localhost:8080/"),

		// Application
		Port:     getEnv("PORT", "8080"),
		Stage:    getEnv("STAGE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	sslMode := "require"
	if c.DBHost == "localhost" || c.DBHost == "127.0.0.1" {
		sslMode = "disable"
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + strconv.Itoa(c.DBPort) + "/" + c.DBName + "?sslmode=" + sslMode
}

// NotificationsEnabled reports whether review e-mails can be sent.
func (c *Config) NotificationsEnabled() bool {
	return c.SESSenderEmail != "" && len(c.ReviewNotifyEmails) > 0
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("3s") or plain milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
