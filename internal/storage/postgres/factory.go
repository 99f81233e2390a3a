package postgres

import (
	"fmt"

	"oauth-provider/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	switch cfg := config.(type) {
	case *Config:
		return NewAdapter(cfg)
	case storage.GenericConfig:
		return NewAdapter(&Config{
			Host:     cfg["host"],
			Port:     cfg["port"],
			Database: cfg["database"],
			Username: cfg["username"],
			Password: cfg["password"],
			SSLMode:  cfg["sslmode"],
		})
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
