// Package clients provides the client registry consumed during the
// client-identification phase of a token or authorization request.
//
// The registry is static configuration data: registrations are loaded once at
// startup and never mutated, so lookups are safe for concurrent requests.
package clients

import (
	"crypto/subtle"
	"sync"
)

// Registration describes a registered OAuth2 client.
//
// A public client holds no secret and is authenticated by redirect-URI
// matching against the request's own root origin. A confidential client
// presents a secret and may pin an exact redirect URI.
type Registration struct {
	// ClientID is the unique client identifier
	ClientID string `json:"client_id"`
	// Secret is the client secret; empty for public clients
	Secret string `json:"-"`
	// Public marks clients unable to hold a secret (e.g. browser apps)
	Public bool `json:"public"`
	// RedirectURI is the pinned redirect URI for confidential clients,
	// compared by exact string equality. Empty for public clients, whose
	// redirect must equal the request root origin instead.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// VerifySecret compares the presented secret against the registered one in
// constant time. Public clients never verify: they have no secret to present.
func (r *Registration) VerifySecret(presented string) bool {
	if r.Public {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Secret), []byte(presented)) == 1
}

// Registry resolves client registrations by id.
type Registry interface {
	// Lookup returns the registration for the client id, or false when the
	// client id is unknown. Unknown ids are denied by callers, never silently
	// passed through.
	Lookup(clientID string) (*Registration, bool)
}

// StaticRegistry is an in-memory Registry seeded at startup.
type StaticRegistry struct {
	mu            sync.RWMutex
	registrations map[string]*Registration
}

// NewStaticRegistry creates a registry containing the single known public
// client plus any additional registrations.
func NewStaticRegistry(publicClientID string, extra ...*Registration) *StaticRegistry {
	registrations := make(map[string]*Registration)
	registrations[publicClientID] = &Registration{
		ClientID: publicClientID,
		Public:   true,
	}

	for _, reg := range extra {
		registrations[reg.ClientID] = reg
	}

	return &StaticRegistry{registrations: registrations}
}

// Lookup returns the registration for the client id.
func (s *StaticRegistry) Lookup(clientID string) (*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[clientID]
	return reg, ok
}
