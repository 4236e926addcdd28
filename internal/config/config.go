// Package config loads and validates process configuration from the
// environment, the way every binary in this module starts up.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
)

// Config holds validated environment configuration shared by both the
// signaling daemon and the reminder scheduler. Not every binary uses every
// field — the reminder binary ignores the WS-facing ones, and vice versa.
type Config struct {
	// Required
	Port         string
	CryptoKey    string // 32-byte key, urlsafe-base64, decoded by internal/crypto
	RedisAddr    string
	AuthGRPCAddr string
	DatabaseURL  string // required only for cmd/reminderd

	SMTPHost        string
	SMTPPort        string
	SMTPUser        string
	SMTPPassword    string
	SMTPFromName    string
	SMTPFromAddress string

	// Optional, defaulted
	LogLevel               string
	AllowedOrigins         string
	SchedulerTickSeconds   int
	SchedulerWindowSeconds int
	AuthTimeoutSeconds     int
	RedisPassword          string
	DevelopmentMode        bool
}

// requireReminderStore, when true, additionally validates DATABASE_URL.
// cmd/reminderd sets this; cmd/videochatd does not need a relational store.
func ValidateEnv(requireReminderStore bool) (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.CryptoKey = os.Getenv("CRYPTO_KEY")
	if cfg.CryptoKey == "" {
		errs = append(errs, "CRYPTO_KEY is required")
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required")
	} else if !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.AuthGRPCAddr = os.Getenv("AUTH_GRPC_ADDR")
	if cfg.AuthGRPCAddr == "" {
		errs = append(errs, "AUTH_GRPC_ADDR is required")
	} else if !isValidHostPort(cfg.AuthGRPCAddr) {
		errs = append(errs, fmt.Sprintf("AUTH_GRPC_ADDR must be in format 'host:port' (got %q)", cfg.AuthGRPCAddr))
	}

	if requireReminderStore {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required")
		}
	} else {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		errs = append(errs, "SMTP_HOST is required")
	}
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	if cfg.SMTPPort == "" {
		errs = append(errs, "SMTP_PORT is required")
	} else if port, err := strconv.Atoi(cfg.SMTPPort); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("SMTP_PORT must be a valid port number (got %q)", cfg.SMTPPort))
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	if cfg.SMTPUser == "" {
		errs = append(errs, "SMTP_USER is required")
	}
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if cfg.SMTPPassword == "" {
		errs = append(errs, "SMTP_PASSWORD is required")
	}
	cfg.SMTPFromName = os.Getenv("SMTP_FROM_NAME")
	if cfg.SMTPFromName == "" {
		errs = append(errs, "SMTP_FROM_NAME is required")
	}
	cfg.SMTPFromAddress = os.Getenv("SMTP_FROM_ADDRESS")
	if cfg.SMTPFromAddress == "" {
		errs = append(errs, "SMTP_FROM_ADDRESS is required")
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "*")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	cfg.SchedulerTickSeconds = intEnvOrDefault("SCHEDULER_TICK_SECONDS", 60, &errs)
	cfg.SchedulerWindowSeconds = intEnvOrDefault("SCHEDULER_WINDOW_SECONDS", 300, &errs)
	cfg.AuthTimeoutSeconds = intEnvOrDefault("AUTH_TIMEOUT_SECONDS", 2, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	logging.Info(context.Background(), "environment configuration validated",
		zap.String("port", cfg.Port),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("auth_grpc_addr", cfg.AuthGRPCAddr),
		zap.String("crypto_key", redactSecret(cfg.CryptoKey)),
		zap.String("smtp_host", cfg.SMTPHost),
		zap.String("smtp_user", redactSecret(cfg.SMTPUser)),
		zap.Int("scheduler_tick_seconds", cfg.SchedulerTickSeconds),
		zap.Int("scheduler_window_seconds", cfg.SchedulerWindowSeconds),
		zap.String("log_level", cfg.LogLevel),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func intEnvOrDefault(key string, defaultValue int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer (got %q)", key, raw))
		return defaultValue
	}
	return v
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
