package handlers

import (
	"net/http"

	"oauth-provider/internal/common/logging"
)

// HealthCheck reports the health of the credential store and, when configured,
// the lockout tracker. A degraded lockout tracker does not fail the check
// because the grant flow treats it as advisory.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":  "healthy",
		"storage": "ok",
	}
	code := http.StatusOK

	if err := h.storage.Health(); err != nil {
		logging.Error("Storage health check failed", err)
		status["status"] = "unhealthy"
		status["storage"] = "unavailable"
		code = http.StatusServiceUnavailable
	}

	if h.lockout != nil {
		status["lockout"] = "ok"
		if err := h.lockout.Health(); err != nil {
			logging.Warn("Lockout tracker health check failed", logging.Err(err))
			status["lockout"] = "degraded"
		}
	}

	respondJSON(w, code, status)
}
