package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	APIToken           string
	ServiceName        string
	SweepInterval      time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	WindowRateLimit    int
	WindowRateBurst    int
	RedisURL           string
	RedisChannel       string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing default file is not an error.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil && !required {
		return nil
	}
	return godotenv.Load(path)
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	name := os.Getenv("SERVICE_NAME")
	if name == "" {
		name = "appointment-service"
	}
	channel := os.Getenv("REDIS_CHANNEL")
	if channel == "" {
		channel = "queue.events"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		APIToken:           strings.TrimSpace(os.Getenv("API_TOKEN")),
		ServiceName:        name,
		SweepInterval:      readDurationSeconds("SWEEP_INTERVAL_SECONDS", 60),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 240),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 60),
		WindowRateLimit:    readInt("WINDOW_RATE_LIMIT_PER_MIN", 120),
		WindowRateBurst:    readInt("WINDOW_RATE_LIMIT_BURST", 30),
		RedisURL:           os.Getenv("REDIS_URL"),
		RedisChannel:       channel,
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
