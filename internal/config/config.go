// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service.
type Config struct {
	Port string
	Env  string

	MongoURI  string
	RedisURL  string // empty selects the in-memory revocation store
	JWTSecret string

	// ContentKey is the hex-encoded 32-byte key for the message-body codec.
	ContentKey string

	// MediaUploadURL is the external object-store endpoint for media sends.
	MediaUploadURL string

	// RateLimitRPM bounds register/login attempts per key per minute.
	RateLimitRPM int
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present; in production it panics on missing
// required values.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		MongoURI:       os.Getenv("MONGODB_URI"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ContentKey:     os.Getenv("CONTENT_KEY"),
		MediaUploadURL: os.Getenv("MEDIA_UPLOAD_URL"),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 10),
	}

	if cfg.Env == "production" {
		if cfg.MongoURI == "" {
			panic("MONGODB_URI is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
		if cfg.ContentKey == "" {
			panic("CONTENT_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
