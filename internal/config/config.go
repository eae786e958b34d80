// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and worker binaries need to start.
type Config struct {
	Port           string
	DatabaseURL    string
	UseMemoryStore bool
	WorkerCount    int
	QueueSize      int
	RuleCacheTTL   time.Duration
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
}

// Load reads the environment. A .env file is applied first when present;
// its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           envOr("PORT", "8090"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		UseMemoryStore: envBool("USE_MEMORY_STORE") || os.Getenv("ENV") == "local",
		WorkerCount:    envInt("WORKER_COUNT", 4),
		QueueSize:      envInt("QUEUE_SIZE", 64),
		RuleCacheTTL:   envDuration("RULE_CACHE_TTL", 5*time.Minute),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "json"),
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}
	if !cfg.UseMemoryStore && cfg.DatabaseURL == "" {
		cfg.UseMemoryStore = true
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
