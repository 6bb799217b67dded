package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	ServerPort      int
	DatabaseURL     string
	JWTSecret       string
	LogLevel        string
	AdminUser       string
	AdminPass       string
	MikrotikPort    int
	MikrotikTimeout time.Duration
	// MikrotikDisabled forces the no-driver path: every adapter read is
	// served from synthetic data and writes report ErrDriverUnavailable.
	MikrotikDisabled bool
	SweepInterval    time.Duration
	SyncInterval     time.Duration
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPFrom         string
	AdminEmail       string
	TelegramToken    string
	TelegramChatID   string
}

// Load loads configuration from the environment with defaults. A .env file
// in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		// Generate a random JWT secret if not provided
		jwtSecret = generateRandomSecret(32)
		fmt.Printf("WARNING: JWT_SECRET not set, generated random secret\n")
		fmt.Printf("         Set JWT_SECRET for production use!\n")
	}

	return &Config{
		ServerPort:       getEnvAsInt("SERVER_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "./data/netbill.db"),
		JWTSecret:        jwtSecret,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AdminUser:        getEnv("ADMIN_USER", "admin"),
		AdminPass:        getEnv("ADMIN_PASS", "admin123"),
		MikrotikPort:     getEnvAsInt("MIKROTIK_PORT", 8728),
		MikrotikTimeout:  getEnvAsDuration("MIKROTIK_TIMEOUT", 8*time.Second),
		MikrotikDisabled: getEnvAsBool("MIKROTIK_DISABLED", false),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		SyncInterval:     getEnvAsDuration("SYNC_INTERVAL", 30*time.Minute),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPass:         getEnv("SMTP_PASS", ""),
		SMTPFrom:         getEnv("SMTP_FROM", "noreply@netbill.local"),
		AdminEmail:       getEnv("ADMIN_EMAIL", ""),
		TelegramToken:    getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// generateRandomSecret generates a cryptographically secure random string
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// Fallback to time-based seed if crypto/rand fails
		return fmt.Sprintf("fallback-secret-%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch value {
		case "1", "t", "T", "true", "TRUE", "True", "yes", "YES":
			return true
		case "0", "f", "F", "false", "FALSE", "False", "no", "NO":
			return false
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
