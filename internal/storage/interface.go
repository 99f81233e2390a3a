// Package storage defines the credential store boundary for the authorization
// server. Adapters implement the Storage interface against a concrete database;
// the provider consumes it as an opaque capability.
package storage

import (
	"context"
	"time"
)

// User is a stored principal record. PasswordHash is a bcrypt hash and never
// leaves the storage layer in API responses.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Storage is the credential store interface consumed by the grant validator.
//
// LookupCredentials is the single suspension point of a grant validation: it
// may block on I/O and must honor ctx cancellation. Implementations perform a
// single attempt with no retries.
type Storage interface {
	// Connection management
	Connect(config StorageConfig) error
	Close() error
	Health() error

	// CreateUser stores a new user with a bcrypt hash of the password.
	CreateUser(ctx context.Context, username, password string) (*User, error)

	// GetUserByUsername returns the user record or a not-found error.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserCount returns the total number of stored users.
	GetUserCount(ctx context.Context) (int, error)

	// LookupCredentials returns every user matching the exact username/password
	// pair: zero, one, or (pathologically) more results. The caller decides the
	// multiple-match policy. A non-nil error means the store itself failed, not
	// that the credentials were wrong.
	LookupCredentials(ctx context.Context, username, password string) ([]*User, error)

	// UpdateUserPassword replaces the stored hash for the given username.
	UpdateUserPassword(ctx context.Context, username, newPassword string) error
}

// StorageConfig is implemented by adapter-specific configuration types.
type StorageConfig interface {
	Validate() error
}

// GenericConfig carries backend-agnostic settings from the application config
// to an adapter factory, which converts it to its concrete config type.
type GenericConfig map[string]string

// Validate always succeeds; concrete adapter configs do the real validation.
func (c GenericConfig) Validate() error { return nil }

// StorageFactory creates a storage adapter from configuration.
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}
