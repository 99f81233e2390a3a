package handlers

import (
	"context"
	"net/http"
	"time"

	"oauth-provider/internal/common/errors"
	"oauth-provider/internal/common/logging"
	"oauth-provider/internal/provider"
)

// credentialLookupTimeout bounds the single credential store call. If the
// store does not answer in time the grant fails closed with server_error.
const credentialLookupTimeout = 5 * time.Second

// HandleToken processes the OAuth2 token endpoint.
//
// Supported grant: grant_type=password with username, password, and an
// optional client_id. On success the response carries access_token,
// token_type, expires_in, and every ticket property (userName); a session
// cookie is set from the independently-built session identity. Denials are
// returned as RFC 6749 error objects; store failures degrade to a generic
// server_error without internal detail.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	// Token responses carry credentials and tokens; they must never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, http.StatusBadRequest, provider.CodeInvalidRequest, "malformed request body")
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != "password" {
		respondOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only the password grant is supported")
		return
	}

	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		// A client must not use more than one authentication method per request.
		if clientID != "" || clientSecret != "" {
			respondOAuthError(w, http.StatusBadRequest, provider.CodeInvalidRequest, "only one client authentication method may be used")
			return
		}
		clientID = basicID
		clientSecret = basicSecret
	}

	if denial := h.provider.AuthenticateClient(clientID, clientSecret); denial != nil {
		respondDenial(w, denial)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if h.isLockedOut(r.Context(), username) {
		// Same generic denial as a wrong password: lockout state must not
		// become an account-existence oracle.
		respondOAuthError(w, http.StatusBadRequest, provider.CodeInvalidGrant, "The username or password is incorrect")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), credentialLookupTimeout)
	defer cancel()

	principal, denial, err := h.provider.ValidateGrant(ctx, username, password)
	if err != nil {
		logging.Error("Credential store failure during grant validation", err)
		respondOAuthError(w, http.StatusInternalServerError, errors.OAuthCode(err), "the authorization server encountered an error")
		return
	}

	if denial != nil {
		h.recordFailure(r.Context(), username)
		respondDenial(w, denial)
		return
	}

	h.resetLockout(r.Context(), username)

	ticket := h.provider.IssueTicket(principal)

	accessToken, err := h.signer.SignAccessToken(ticket)
	if err != nil {
		logging.Error("Failed to sign access token", err)
		respondOAuthError(w, http.StatusInternalServerError, provider.CodeServerError, "the authorization server encountered an error")
		return
	}

	sessionToken, err := h.signer.SignSessionToken(ticket)
	if err != nil {
		logging.Error("Failed to sign session token", err)
		respondOAuthError(w, http.StatusInternalServerError, provider.CodeServerError, "the authorization server encountered an error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  ticket.ExpiresAt,
	})

	extra := make(map[string]string)
	h.provider.AugmentResponse(extra, ticket.Properties)

	response := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(ticket.ExpiresAt.Sub(ticket.IssuedAt).Seconds()),
	}
	for key, value := range extra {
		response[key] = value
	}

	logging.Info("Access token issued",
		logging.String("username", principal.Username),
		logging.Time("expires_at", ticket.ExpiresAt))

	respondJSON(w, http.StatusOK, response)
}

func (h *Handlers) isLockedOut(ctx context.Context, username string) bool {
	if h.lockout == nil {
		return false
	}

	locked, err := h.lockout.IsLockedOut(ctx, username)
	if err != nil {
		// Advisory check: a lockout store failure never blocks the grant.
		logging.Warn("Lockout check failed", logging.Err(err))
		return false
	}
	return locked
}

func (h *Handlers) recordFailure(ctx context.Context, username string) {
	if h.lockout == nil {
		return
	}
	if err := h.lockout.RecordFailure(ctx, username); err != nil {
		logging.Warn("Failed to record login failure", logging.Err(err))
	}
}

func (h *Handlers) resetLockout(ctx context.Context, username string) {
	if h.lockout == nil {
		return
	}
	if err := h.lockout.Reset(ctx, username); err != nil {
		logging.Warn("Failed to reset lockout state", logging.Err(err))
	}
}
