package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config represents runtime configuration for the ingestion service.
type Config struct {
	Port        string
	DatabaseURL string
	InboxDir    string
	Env         string
	LogLevel    string
	MaxUploadMB int
	Creator     string
}

// FromEnv loads configuration from environment variables required by the service.
func FromEnv() (*Config, error) {
	dbURL := os.Getenv("POSFEED_DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("POSFEED_DB_URL is required")
	}

	cfg := &Config{
		Port:        normalizePort(getEnvDefault("POSFEED_PORT", "8080")),
		DatabaseURL: dbURL,
		InboxDir:    getEnvDefault("POSFEED_INBOX_DIR", "/var/lib/posfeed/inbox"),
		Env:         strings.TrimSpace(os.Getenv("POSFEED_ENV")),
		LogLevel:    getEnvDefault("POSFEED_LOG_LEVEL", "info"),
		MaxUploadMB: parseIntEnv("POSFEED_MAX_UPLOAD_MB", 64),
		Creator:     getEnvDefault("POSFEED_CREATED_BY", "posfeed"),
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("POSFEED_MAX_UPLOAD_MB must be positive")
	}
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func normalizePort(port string) string {
	if port == "" {
		return "8080"
	}
	if _, err := strconv.Atoi(port); err == nil {
		return port
	}
	// Allow values like ":8080".
	if len(port) > 0 && port[0] == ':' {
		return port[1:]
	}
	return port
}

func parseIntEnv(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}
