// Package config содержит логику чтения конфигурации складского сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultCleanupInterval   = time.Hour
	defaultHeartbeatInterval = 30 * time.Second
)

// Config содержит параметры конфигурации складского сервиса.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	SessionSecret      string        `env:"SESSION_SECRET"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	FCMServerKey       string        `env:"FCM_SERVER_KEY"`
	FCMEndpoint        string        `env:"FCM_ENDPOINT"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL"`
	AdminEmail         string        `env:"ADMIN_EMAIL"`
	AdminPassword      string        `env:"ADMIN_PASSWORD"`
	TrustProxy         bool          `env:"TRUST_PROXY"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	var corsOrigins string

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session signing secret")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "redis address for the location cache")
	flag.StringVar(&cfg.FCMServerKey, "fcm-key", "", "FCM server key")
	flag.StringVar(&cfg.FCMEndpoint, "fcm-endpoint", "", "FCM send endpoint")
	flag.StringVar(&cfg.PublicBaseURL, "base-url", "", "public base URL of the dashboard")
	flag.StringVar(&corsOrigins, "cors", "", "comma separated list of allowed CORS origins")
	flag.DurationVar(&cfg.CleanupInterval, "cleanup-interval", defaultCleanupInterval, "delivery cleanup interval")
	flag.BoolVar(&cfg.TrustProxy, "trust-proxy", false, "take client IP from X-Forwarded-For / X-Real-IP")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", defaultHeartbeatInterval, "notification stream heartbeat interval")

	flag.Parse()

	if corsOrigins != "" {
		cfg.CORSAllowedOrigins = splitList(corsOrigins)
	}

	overrideString(&cfg.RunAddress, envCfg.RunAddress)
	overrideString(&cfg.DatabaseURI, envCfg.DatabaseURI)
	overrideString(&cfg.SessionSecret, envCfg.SessionSecret)
	overrideString(&cfg.RedisAddr, envCfg.RedisAddr)
	overrideString(&cfg.FCMServerKey, envCfg.FCMServerKey)
	overrideString(&cfg.FCMEndpoint, envCfg.FCMEndpoint)
	overrideString(&cfg.PublicBaseURL, envCfg.PublicBaseURL)
	if len(envCfg.CORSAllowedOrigins) > 0 {
		cfg.CORSAllowedOrigins = envCfg.CORSAllowedOrigins
	}
	if envCfg.CleanupInterval > 0 {
		cfg.CleanupInterval = envCfg.CleanupInterval
	}
	if envCfg.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = envCfg.HeartbeatInterval
	}
	if envCfg.TrustProxy {
		cfg.TrustProxy = true
	}
	cfg.RedisPassword = envCfg.RedisPassword
	cfg.AdminEmail = envCfg.AdminEmail
	cfg.AdminPassword = envCfg.AdminPassword

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}

	return cfg, nil
}

func overrideString(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
