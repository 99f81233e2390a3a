// Package config provides configuration management for the authorization server.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the server starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./oauth_provider.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration (optional, enables failed-login lockout):
//   - REDIS_ADDRESS: Redis server address
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Token Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//   - TOKEN_TTL: Access token lifetime (default: 20m)
//   - PUBLIC_CLIENT_ID: The registered public client id (default: public-client)
//
// Lockout Configuration:
//   - LOCKOUT_THRESHOLD: Failed attempts before lockout (default: 10)
//   - LOCKOUT_WINDOW: Lockout counting window (default: 5m)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the authorization server.
// All fields correspond to environment variables that can be set to
// override the default values.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Database configuration for the credential store
	DatabaseType     string // Database type: "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Redis configuration for the failed-login lockout tracker
	RedisAddress  string // Redis server address (host:port); empty disables lockout
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)

	// Token configuration
	JWTSecret      string // Secret key for access token signing (required)
	TokenTTL       string // Access token lifetime (e.g. "20m")
	PublicClientID string // Registered public client id

	// Lockout configuration
	LockoutThreshold string // Failed attempts before lockout
	LockoutWindow    string // Lockout counting window (e.g. "5m")
}

// Load creates a new Config instance with values loaded from environment
// variables. Missing variables fall back to defaults.
//
// This function does not validate the configuration - call Validate() on the
// returned Config before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./oauth_provider.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "oauth_provider"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		TokenTTL:       getEnv("TOKEN_TTL", "20m"),
		PublicClientID: getEnv("PUBLIC_CLIENT_ID", "public-client"),

		LockoutThreshold: getEnv("LOCKOUT_THRESHOLD", "10"),
		LockoutWindow:    getEnv("LOCKOUT_WINDOW", "5m"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// TokenLifetime returns the parsed access token TTL.
// Validate must have been called first; an unparseable value falls back to 20 minutes.
func (c *Config) TokenLifetime() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return 20 * time.Minute
	}
	return d
}

// LockoutPolicy returns the parsed lockout threshold and window.
func (c *Config) LockoutPolicy() (int, time.Duration) {
	threshold, err := strconv.Atoi(c.LockoutThreshold)
	if err != nil || threshold < 1 {
		threshold = 10
	}
	window, err := time.ParseDuration(c.LockoutWindow)
	if err != nil || window <= 0 {
		window = 5 * time.Minute
	}
	return threshold, window
}

// Validate performs comprehensive validation on the configuration to ensure
// all required fields are present and all values are valid.
//
// The server should call this method after loading configuration and before
// starting to ensure safe operation.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long for security")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.PublicClientID == "" {
		return fmt.Errorf("PUBLIC_CLIENT_ID must not be empty")
	}

	if _, err := time.ParseDuration(c.TokenTTL); err != nil {
		return fmt.Errorf("TOKEN_TTL must be a valid duration (e.g., '20m', '1h')")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
		// Valid database types
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	}

	if threshold, err := strconv.Atoi(c.LockoutThreshold); err != nil || threshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be a positive number")
	}
	if _, err := time.ParseDuration(c.LockoutWindow); err != nil {
		return fmt.Errorf("LOCKOUT_WINDOW must be a valid duration (e.g., '5m')")
	}

	return nil
}
