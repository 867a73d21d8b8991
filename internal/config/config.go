// Package config provides configuration management for chronicle.
// It loads settings from environment variables with the CHRONICLE_ prefix
// and provides sensible defaults for all configuration options. Scoring
// tunables (budget ratios, thread weights, decay half-life) can
// additionally be overridden from a YAML file via LoadTunables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the chronicle engine.
type Config struct {
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Ingest    IngestConfig
	Engine    EngineConfig
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine string // Storage engine: sqlite, postgres (default: sqlite)
	DSN    string // Database DSN (default: ./chronicle.db)
}

// EmbeddingConfig contains embedding backend configuration.
type EmbeddingConfig struct {
	OllamaURL  string        // Ollama API URL (default: http://localhost:11434)
	Model      string        // Embedding model name (default: nomic-embed-text)
	Timeout    time.Duration // Per-request timeout (default: 5s)
	RatePerSec float64       // Sustained embed requests per second (default: 10)
	RateBurst  int           // Embed request burst size (default: 5)
}

// IngestConfig contains the websocket log-ingest listener configuration.
type IngestConfig struct {
	Addr string // Listen address (default: 127.0.0.1:6380)
}

// EngineConfig contains engine behavior knobs.
type EngineConfig struct {
	ProfileCacheTTL time.Duration // Profile cache TTL (default: 1h)
	DedupEvents     bool          // Event-level dedup of identical lines (default: false)
	TunablesPath    string        // Optional YAML tunables file path
}

// Load builds the configuration from environment variables with defaults.
// All environment variables use the CHRONICLE_ prefix.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: getEnv("CHRONICLE_STORAGE_ENGINE", "sqlite"),
			DSN:    getEnv("CHRONICLE_DSN", "./chronicle.db"),
		},
		Embedding: EmbeddingConfig{
			OllamaURL:  getEnv("CHRONICLE_OLLAMA_URL", "http://localhost:11434"),
			Model:      getEnv("CHRONICLE_EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:    getEnvDuration("CHRONICLE_EMBEDDING_TIMEOUT", 5*time.Second),
			RatePerSec: getEnvFloat("CHRONICLE_EMBEDDING_RATE", 10),
			RateBurst:  getEnvInt("CHRONICLE_EMBEDDING_BURST", 5),
		},
		Ingest: IngestConfig{
			Addr: getEnv("CHRONICLE_INGEST_ADDR", "127.0.0.1:6380"),
		},
		Engine: EngineConfig{
			ProfileCacheTTL: getEnvDuration("CHRONICLE_PROFILE_CACHE_TTL", time.Hour),
			DedupEvents:     getEnvBool("CHRONICLE_DEDUP_EVENTS", false),
			TunablesPath:    getEnv("CHRONICLE_TUNABLES", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
