package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Placeholder secrets shipped in .env.example. Refused outright in
// production, warned about everywhere else.
var insecureSecrets = map[string]bool{
	"change-me":        true,
	"changeme":         true,
	"secret":           true,
	"your-secret-here": true,
}

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string

	// CardSecret is the shared key mixed into every card signature.
	// Compromise invalidates every issued card.
	CardSecret  string
	Association string

	Database DatabaseConfig
	Storage  StorageConfig
	SMTP     SMTPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// StorageConfig describes where rendered card images live.
// ReadOnly is an explicit capability flag supplied by the hosting
// layer; when set the store skips writing instead of probing the
// filesystem on every call.
type StorageConfig struct {
	Dir      string
	ReadOnly bool
}

// SMTPConfig holds mail dispatch configuration. An empty Host means
// mail is unconfigured and dispatch falls back to log-only mode.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	nodeEnv := getEnv("NODE_ENV", "development")

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cardSecret := os.Getenv("CARD_SECRET")
	if cardSecret == "" {
		return nil, fmt.Errorf("CARD_SECRET is required: cards cannot be signed or verified without it")
	}
	if insecureSecrets[cardSecret] {
		if nodeEnv == "production" {
			return nil, fmt.Errorf("CARD_SECRET is a known placeholder value; refusing to sign cards with it in production")
		}
		log.Printf("⚠️ CARD_SECRET is a placeholder value - fine for development, never for production")
	}

	smtpTimeout := 15 * time.Second
	if v := os.Getenv("SMTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			smtpTimeout = time.Duration(n) * time.Second
		}
	}

	return &Config{
		NodeEnv:     nodeEnv,
		Port:        getEnv("PORT", "3001"),
		JWTSecret:   jwtSecret,
		CardSecret:  cardSecret,
		Association: getEnv("ASSOCIATION_NAME", "MHM"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "memberpass"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Storage: StorageConfig{
			Dir:      getEnv("CARD_STORAGE_DIR", "./data/cards"),
			ReadOnly: getEnv("STORAGE_READONLY", "false") == "true",
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "no-reply@mhm-assoc.org"),
			Timeout:  smtpTimeout,
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
