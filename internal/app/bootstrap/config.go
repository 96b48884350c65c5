package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL      string
	DatabaseMaxConns int
	RedisURL         string

	JWTPublicKeyPEM string

	SettingsGRPCURL  string
	DirectoryGRPCURL string

	IdempotencyTTL       time.Duration
	EventDedupTTL        time.Duration
	ReservationTTL       time.Duration
	ConsumerPollInterval time.Duration

	EnableDomainEventConsumption bool
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		DatabaseURL      string `yaml:"database_url"`
		DatabaseMaxConns int    `yaml:"database_max_conns"`
		RedisURL         string `yaml:"redis_url"`
		JWTPublicKeyPEM  string `yaml:"jwt_public_key_pem"`
		SettingsGRPCURL  string `yaml:"settings_grpc_url"`
		DirectoryGRPCURL string `yaml:"directory_grpc_url"`
	} `yaml:"dependencies"`
	Limits struct {
		IdempotencyTTLHours        int `yaml:"idempotency_ttl_hours"`
		EventDedupTTLHours         int `yaml:"event_dedup_ttl_hours"`
		ReservationTTLMinutes      int `yaml:"reservation_ttl_minutes"`
		ConsumerPollIntervalMillis int `yaml:"consumer_poll_interval_ms"`
	} `yaml:"limits"`
	FeatureFlags struct {
		EnableDomainEventConsumption *bool `yaml:"enable_domain_event_consumption"`
	} `yaml:"feature_flags"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "claim-engine",
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		DatabaseMaxConns:             10,
		IdempotencyTTL:               24 * time.Hour,
		EventDedupTTL:                7 * 24 * time.Hour,
		ReservationTTL:               15 * time.Minute,
		ConsumerPollInterval:         time.Second,
		EnableDomainEventConsumption: true,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		cfg.DatabaseURL = f.Dependencies.DatabaseURL
		if f.Dependencies.DatabaseMaxConns > 0 {
			cfg.DatabaseMaxConns = f.Dependencies.DatabaseMaxConns
		}
		cfg.RedisURL = f.Dependencies.RedisURL
		cfg.JWTPublicKeyPEM = f.Dependencies.JWTPublicKeyPEM
		cfg.SettingsGRPCURL = f.Dependencies.SettingsGRPCURL
		cfg.DirectoryGRPCURL = f.Dependencies.DirectoryGRPCURL
		if f.Limits.IdempotencyTTLHours > 0 {
			cfg.IdempotencyTTL = time.Duration(f.Limits.IdempotencyTTLHours) * time.Hour
		}
		if f.Limits.EventDedupTTLHours > 0 {
			cfg.EventDedupTTL = time.Duration(f.Limits.EventDedupTTLHours) * time.Hour
		}
		if f.Limits.ReservationTTLMinutes > 0 {
			cfg.ReservationTTL = time.Duration(f.Limits.ReservationTTLMinutes) * time.Minute
		}
		if f.Limits.ConsumerPollIntervalMillis > 0 {
			cfg.ConsumerPollInterval = time.Duration(f.Limits.ConsumerPollIntervalMillis) * time.Millisecond
		}
		if f.FeatureFlags.EnableDomainEventConsumption != nil {
			cfg.EnableDomainEventConsumption = *f.FeatureFlags.EnableDomainEventConsumption
		}
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = envInt("DATABASE_MAX_CONNS", cfg.DatabaseMaxConns)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.SettingsGRPCURL = envOrDefault("SETTINGS_GRPC_URL", cfg.SettingsGRPCURL)
	cfg.DirectoryGRPCURL = envOrDefault("DIRECTORY_GRPC_URL", cfg.DirectoryGRPCURL)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.ReservationTTL = time.Duration(envInt("RESERVATION_TTL_MINUTES", int(cfg.ReservationTTL.Minutes()))) * time.Minute
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_MS", int(cfg.ConsumerPollInterval.Milliseconds()))) * time.Millisecond
	cfg.EnableDomainEventConsumption = envBool("ENABLE_DOMAIN_EVENT_CONSUMPTION", cfg.EnableDomainEventConsumption)

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
