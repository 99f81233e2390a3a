// Package handlers implements the HTTP endpoints of the authorization server:
// the token endpoint, the authorization-phase client/redirect validation, user
// provisioning, and health checks.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"oauth-provider/internal/common/logging"
	"oauth-provider/internal/lockout"
	"oauth-provider/internal/provider"
	"oauth-provider/internal/storage"
	"oauth-provider/internal/token"
)

type Handlers struct {
	storage  storage.Storage
	provider provider.GrantProvider
	signer   *token.Signer
	lockout  *lockout.Tracker // nil when Redis is not configured
}

func New(store storage.Storage, grantProvider provider.GrantProvider, signer *token.Signer, tracker *lockout.Tracker) *Handlers {
	return &Handlers{
		storage:  store,
		provider: grantProvider,
		signer:   signer,
		lockout:  tracker,
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

// respondOAuthError writes an RFC 6749 error object.
func respondOAuthError(w http.ResponseWriter, status int, code, description string) {
	respondJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// respondDenial writes a modeled denial as an OAuth error response.
func respondDenial(w http.ResponseWriter, denial *provider.Denial) {
	respondOAuthError(w, denial.StatusCode(), denial.Code, denial.Message)
}

// requestRootURI computes the request's root origin (scheme+host+"/"), the
// value the public client's redirect URI must equal exactly.
func requestRootURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s/", scheme, r.Host)
}
