// Package config loads server settings from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/cashflow/internal/calculator"
)

// Config holds the server settings. Every field has a default so the server
// starts with no environment at all.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. When unset a random secret is
	// generated and GeneratedSecret is true; tokens then expire on restart.
	JWTSecret       string
	GeneratedSecret bool
	TokenTTL        time.Duration

	// CurrencyPlaces is the number of minor-unit digits settlements are
	// rounded to.
	CurrencyPlaces int32

	// MaxIterations caps the reducer loop; 0 derives the cap from the
	// number of parties.
	MaxIterations int

	CORSOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:    getEnv("DB_PATH", "./data/cashflow.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}

	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}

	places, err := getInt("CURRENCY_PLACES", int(calculator.DefaultPlaces))
	if err != nil {
		return nil, err
	}
	if places < 0 || places > int(calculator.MaxPlaces) {
		return nil, fmt.Errorf("CURRENCY_PLACES must be between 0 and %d, got %d", calculator.MaxPlaces, places)
	}
	cfg.CurrencyPlaces = int32(places)

	if cfg.MaxIterations, err = getInt("MAX_ITERATIONS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("MAX_ITERATIONS must not be negative, got %d", cfg.MaxIterations)
	}

	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if cfg.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(secret)
		cfg.GeneratedSecret = true
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
