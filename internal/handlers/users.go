package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"oauth-provider/internal/common/logging"
	"oauth-provider/internal/token"
)

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleCreateUser provisions a new user. The request must carry a valid
// bearer token issued by this server.
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeBearer(w, r) {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}
	if len(req.Password) < 8 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}

	if _, err := h.storage.GetUserByUsername(r.Context(), req.Username); err == nil {
		respondJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
		return
	}

	user, err := h.storage.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		logging.Error("Failed to create user", err, logging.String("username", req.Username))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create user"})
		return
	}

	logging.Info("User created", logging.String("username", user.Username))
	respondJSON(w, http.StatusCreated, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword replaces the caller's own password. The subject is
// taken from the bearer token; the current password must be presented again.
func (h *Handlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := h.bearerSubject(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(req.NewPassword) < 8 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}

	matches, err := h.storage.LookupCredentials(r.Context(), username, req.CurrentPassword)
	if err != nil {
		logging.Error("Credential check failed during password change", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to change password"})
		return
	}
	if len(matches) == 0 {
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "current password is incorrect"})
		return
	}

	if err := h.storage.UpdateUserPassword(r.Context(), username, req.NewPassword); err != nil {
		logging.Error("Failed to update password", err, logging.String("username", username))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to change password"})
		return
	}

	logging.Info("Password changed", logging.String("username", username))
	w.WriteHeader(http.StatusNoContent)
}

// authorizeBearer enforces a valid bearer token on management endpoints.
// It writes the error response itself and reports whether to proceed.
func (h *Handlers) authorizeBearer(w http.ResponseWriter, r *http.Request) bool {
	_, ok := h.bearerSubject(w, r)
	return ok
}

// bearerSubject validates the bearer token and returns its subject username.
// On failure it writes the error response and returns false.
func (h *Handlers) bearerSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "bearer token required"})
		return "", false
	}

	claims, err := h.signer.Parse(strings.TrimPrefix(header, prefix), token.AudienceBearer)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return "", false
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return "", false
	}

	return subject, true
}
