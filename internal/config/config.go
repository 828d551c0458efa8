package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally tunable parameter. Values are read from the
// environment once at process start and fixed for the process lifetime.
type Config struct {
	HTTPPort    string
	AccessToken string

	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration
	// CartExpiration is how long a cart may sit untouched before it is swept.
	CartExpiration time.Duration

	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment. ACCESS_TOKEN is the only
// required variable.
func Load() (*Config, error) {
	token := os.Getenv("ACCESS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("ACCESS_TOKEN must be set")
	}

	sweepSeconds, err := getEnvInt("SESSION_REFRESH_INTERVAL_IN_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	expirationSeconds, err := getEnvInt("SESSION_EXPIRATION_TIME_IN_SECONDS", 900)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		AccessToken:     token,
		SweepInterval:   time.Duration(sweepSeconds) * time.Second,
		CartExpiration:  time.Duration(expirationSeconds) * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
