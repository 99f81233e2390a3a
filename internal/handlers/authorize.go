package handlers

import (
	"net/http"

	"oauth-provider/internal/provider"
)

// HandleAuthorize validates the client and redirect URI of an authorization
// request. Only validation is implemented: any request that passes it is
// rejected with unsupported_response_type because no redirect-based grant is
// offered. The endpoint exists so public clients can be checked against the
// request's root origin before a front end starts a login flow.
func (h *Handlers) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	clientID := query.Get("client_id")
	if clientID == "" {
		respondOAuthError(w, http.StatusBadRequest, provider.CodeInvalidRequest, "client_id is required")
		return
	}

	if denial := h.provider.ValidateRedirect(clientID, query.Get("redirect_uri"), requestRootURI(r)); denial != nil {
		respondDenial(w, denial)
		return
	}

	respondOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "no authorization response type is supported")
}
