// Package config loads service configuration from the environment and hands
// it to main as an explicit value; nothing here is a process-global.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Addr        string
	PostgresDSN string
	RedisAddr   string

	// AuthSecret signs session tokens. Empty means the insecure built-in
	// development secret; main warns loudly.
	AuthSecret string

	// IDPAudience is the OAuth client id expected on first-party delegated
	// tokens.
	IDPAudience string

	ThrottleMaxAttempts int
	ThrottleWindow      time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// FromEnv reads configuration with defaults suitable for local development.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                getString("AV_ADDR", ":8080"),
		PostgresDSN:         os.Getenv("AV_PG_DSN"),
		RedisAddr:           os.Getenv("AV_REDIS_ADDR"),
		AuthSecret:          os.Getenv("AV_AUTH_SECRET"),
		IDPAudience:         os.Getenv("AV_IDP_AUDIENCE"),
		ThrottleMaxAttempts: 10,
		ThrottleWindow:      15 * time.Minute,
		RateLimitPerSecond:  20,
		RateLimitBurst:      40,
		MaxBodyBytes:        1 << 20,
	}

	var err error
	if cfg.ThrottleMaxAttempts, err = getInt("AV_THROTTLE_MAX_ATTEMPTS", cfg.ThrottleMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.ThrottleWindow, err = getDuration("AV_THROTTLE_WINDOW", cfg.ThrottleWindow); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = getInt("AV_RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getInt("AV_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return Config{}, err
	}

	if cfg.ThrottleMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("AV_THROTTLE_MAX_ATTEMPTS must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("rate limit settings must be positive")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
