package storage

import (
	"fmt"

	"oauth-provider/internal/common/errors"
	"oauth-provider/internal/config"
)

// NewStorage creates a credential store adapter based on configuration.
// The adapter packages must be imported (for their init registration) by the
// caller, typically via the application entry point.
func NewStorage(cfg *config.Config) (Storage, error) {
	var storageConfig StorageConfig

	switch cfg.DatabaseType {
	case "sqlite":
		storageConfig = GenericConfig{
			"path": cfg.DatabasePath,
		}

	case "postgres", "postgresql":
		storageConfig = GenericConfig{
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPort,
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}

	storageType := cfg.DatabaseType
	if storageType == "postgresql" {
		storageType = "postgres"
	}

	return Create(storageType, storageConfig)
}
