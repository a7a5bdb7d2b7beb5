package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBDriver string
	DBConn   string
	LogLevel string

	JWTSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string

	OverdueSweepSpec string
	ScoreRefreshSpec string
	ScoreStaleAfter  int64
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBDriver: getEnv("DB_DRIVER", "postgres"),
		DBConn:   getEnv("DB_CONN", "host=localhost port=5432 user=credit password=credit dbname=credit sslmode=disable"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		JWTSecret: getEnv("JWT_SECRET", "secret"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "credit-service@localhost"),
		NotifyEmail:  getEnv("NOTIFY_EMAIL", ""),

		OverdueSweepSpec: getEnv("OVERDUE_SWEEP_SPEC", "@every 1m"),
		ScoreRefreshSpec: getEnv("SCORE_REFRESH_SPEC", "@every 5m"),
	}

	staleAfter, err := strconv.ParseInt(getEnv("SCORE_STALE_AFTER", "100"), 10, 64)
	if err != nil || staleAfter <= 0 {
		return nil, fmt.Errorf("SCORE_STALE_AFTER must be a positive integer")
	}
	cfg.ScoreStaleAfter = staleAfter

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
