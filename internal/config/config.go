// Package config centralises configuration parsing for the tracker service.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures runtime configuration values for the tracker service.
type Config struct {
	HTTPAddress string

	// Remote content store (GitHub contents API compatible).
	StoreBaseURL string
	StoreOwner   string
	StoreRepo    string
	StoreBranch  string
	StoreToken   string
	CacheTTL     time.Duration // Read-cache lifetime fronting the remote store.

	JWTSecret string
	JWTIssuer string

	KafkaBrokers []string // Empty disables the transition event feed.
	EventTopic   string

	TrackerCadence    time.Duration // Interval between periodic location checks.
	TrackerStaleAfter time.Duration // Minimum age of the newest log entry before a check is written.
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:       getEnv("HTTP_ADDRESS", ":8080"),
		StoreBaseURL:      getEnv("STORE_BASE_URL", "https://api.github.com"),
		StoreOwner:        getEnv("STORE_OWNER", "nycsbus"),
		StoreRepo:         getEnv("STORE_REPO", "site-activities"),
		StoreBranch:       getEnv("STORE_BRANCH", "main"),
		StoreToken:        getEnv("STORE_TOKEN", ""),
		CacheTTL:          getDurationEnv("STORE_CACHE_TTL", 30*time.Second),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:         getEnv("JWT_ISSUER", "sitetrack.identity"),
		EventTopic:        getEnv("EVENT_TOPIC", "activity_events"),
		TrackerCadence:    getDurationEnv("TRACKER_CADENCE", 30*time.Second),
		TrackerStaleAfter: getDurationEnv("TRACKER_STALE_AFTER", 25*time.Second),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", ""))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
