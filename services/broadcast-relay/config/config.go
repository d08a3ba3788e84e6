package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	// SubscriberBuffer is how many events may queue for one subscriber before it is dropped.
	SubscriberBuffer int
	// MaxEventBytes caps the size of a publish request body.
	MaxEventBytes int64

	PingInterval time.Duration
	PongWait     time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "3001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 256),
		MaxEventBytes:    int64(getEnvAsInt("MAX_EVENT_BYTES", 1<<20)),

		PingInterval: getEnvAsDuration("PING_INTERVAL", 54*time.Second),
		PongWait:     getEnvAsDuration("PONG_WAIT", 60*time.Second),
	}
}

func (c *Config) Validate() error {
	if c.SubscriberBuffer <= 0 {
		return errors.New("SUBSCRIBER_BUFFER must be positive")
	}
	if c.MaxEventBytes <= 0 {
		return errors.New("MAX_EVENT_BYTES must be positive")
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		return errors.New("PONG_WAIT must exceed a positive PING_INTERVAL")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
