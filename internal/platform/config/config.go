// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, bus) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Dashtam API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache & Pub/Sub Broker (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// JWTSecret signs HS256 access tokens. Must be at least 32 bytes.
	JWTSecret string `env:"JWT_SECRET,required"`

	// CredentialKey is the 32-byte hex key for provider-credential AEAD.
	CredentialKey string `env:"CREDENTIAL_KEY"`

	// Token TTLs. Defaults match the security review baseline.
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// EventBusType selects the domain event bus backend.
	// Only "in-memory" is implemented; "rabbitmq" and "kafka" are reserved.
	EventBusType string `env:"EVENT_BUS_TYPE" envDefault:"in-memory"`

	// SSEEnableRetention toggles the bounded per-user replay stream.
	SSEEnableRetention bool `env:"SSE_ENABLE_RETENTION" envDefault:"false"`

	// AWSRegion is the production logging target region (console logs otherwise).
	AWSRegion string `env:"AWS_REGION"`

	// Email delivery (Postmark). Empty token selects the dev file sender.
	PostmarkToken string `env:"POSTMARK_SERVER_TOKEN"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"no-reply@dashtam.app"`
	DevEmailDir   string `env:"DEV_EMAIL_DIR" envDefault:"./dev_emails"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.EventBusType != "in-memory" && cfg.EventBusType != "rabbitmq" && cfg.EventBusType != "kafka" {
		return nil, fmt.Errorf("config: unknown EVENT_BUS_TYPE %q", cfg.EventBusType)
	}

	return cfg, nil
}

// AllowedOrigins returns the extra CORS origins configured for this deployment.
func (c *Config) AllowedOrigins() []string {
	if c.ExtraOrigins == "" {
		return nil
	}

	origins := strings.Split(c.ExtraOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsTesting reports whether the server is running under the testing or CI environment.
func (c *Config) IsTesting() bool {
	return c.Environment == "testing" || c.Environment == "ci"
}
