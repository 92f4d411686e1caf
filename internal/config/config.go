// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	CatalogPath string
	Memory      MemoryConfig
}

// MemoryConfig controls the TTLs of the conversation memory tiers and
// how often expired entries are swept from the backing cache.
type MemoryConfig struct {
	SessionTTL    time.Duration
	BufferTTL     time.Duration
	EntityTTL     time.Duration
	SummaryTTL    time.Duration
	BufferSize    int
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/converse.db"),
		CatalogPath: getEnv("CATALOG_PATH", "./data/catalog.yaml"),
		Memory: MemoryConfig{
			SessionTTL:    getEnvDuration("SESSION_TTL", 60*time.Minute),
			BufferTTL:     getEnvDuration("MEMORY_BUFFER_TTL", 30*time.Minute),
			EntityTTL:     getEnvDuration("MEMORY_ENTITY_TTL", 60*time.Minute),
			SummaryTTL:    getEnvDuration("MEMORY_SUMMARY_TTL", 24*time.Hour),
			BufferSize:    getEnvInt("MEMORY_BUFFER_SIZE", 10),
			SweepInterval: getEnvDuration("MEMORY_SWEEP_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Memory.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Memory.BufferSize <= 0 {
		return fmt.Errorf("MEMORY_BUFFER_SIZE must be > 0")
	}
	if c.Memory.SweepInterval <= 0 {
		return fmt.Errorf("MEMORY_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
