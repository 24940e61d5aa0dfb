package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the admin panel backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	Environment      string

	AllowAnyOrigin bool

	DatabaseURL string

	JWTSecret   string
	JWTTokenTTL time.Duration
	BcryptCost  int

	EngineProvider       string
	GeminiAPIKey         string
	GeminiWSBaseURL      string
	GeminiDefaultModel   string
	GeminiDefaultVoice   string
	GeminiDefaultTemp    float64
	EngineConnectTimeout time.Duration

	SessionInactivityTimeout time.Duration
	MaxSessionDuration       time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":3003"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "adminpanel"),
		Environment:        envOrDefault("APP_ENV", "development"),
		AllowAnyOrigin:     false,
		DatabaseURL:        trimSpaceEnv("DATABASE_URL"),
		JWTSecret:          trimSpaceEnv("JWT_SECRET"),
		EngineProvider:     envOrDefault("ENGINE_PROVIDER", "auto"),
		GeminiAPIKey:       trimSpaceEnv("GEMINI_API_KEY"),
		GeminiWSBaseURL:    envOrDefault("GEMINI_WS_BASE_URL", "wss://generativelanguage.googleapis.com"),
		GeminiDefaultModel: envOrDefault("GEMINI_MODEL", "gemini-2.5-flash-preview-native-audio-dialog"),
		GeminiDefaultVoice: envOrDefault("GEMINI_VOICE_NAME", "Orus"),
		GeminiDefaultTemp:  1.0,

		ShutdownTimeout:          15 * time.Second,
		JWTTokenTTL:              24 * time.Hour,
		BcryptCost:               10,
		EngineConnectTimeout:     15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		MaxSessionDuration:       30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JWTTokenTTL, err = durationFromEnv("JWT_TOKEN_TTL", cfg.JWTTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.EngineConnectTimeout, err = durationFromEnv("ENGINE_CONNECT_TIMEOUT", cfg.EngineConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSessionDuration, err = durationFromEnv("APP_MAX_SESSION_DURATION", cfg.MaxSessionDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.BcryptCost, err = intFromEnv("AUTH_BCRYPT_COST", cfg.BcryptCost)
	if err != nil {
		return Config{}, err
	}
	cfg.GeminiDefaultTemp, err = floatFromEnv("GEMINI_TEMPERATURE", cfg.GeminiDefaultTemp)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			return Config{}, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-insecure-secret"
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if cfg.EngineConnectTimeout < time.Second {
		return Config{}, fmt.Errorf("ENGINE_CONNECT_TIMEOUT must be at least 1s")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxSessionDuration < time.Minute {
		return Config{}, fmt.Errorf("APP_MAX_SESSION_DURATION must be at least 1m")
	}
	if cfg.GeminiDefaultTemp < 0 || cfg.GeminiDefaultTemp > 2 {
		return Config{}, fmt.Errorf("GEMINI_TEMPERATURE must be between 0 and 2")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EngineProvider)) {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("invalid ENGINE_PROVIDER: %q (expected auto|gemini|mock)", cfg.EngineProvider)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimSpaceEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimSpaceEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
