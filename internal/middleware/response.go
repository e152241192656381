package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/qcom/authgate/internal/service"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail is only populated in debug mode.
	Detail string `json:"detail,omitempty"`
}

var reasonMessages = map[string]string{
	service.ReasonCredentialMissing:     "Authentication credentials were not provided",
	service.ReasonMalformedToken:        "Token is malformed",
	service.ReasonSignatureInvalid:      "Token signature is invalid",
	service.ReasonExpired:               "Token has expired",
	service.ReasonRevoked:               "Token has been revoked",
	service.ReasonScopeInsufficient:     "Insufficient scope",
	service.ReasonDependencyUnavailable: "Authentication is temporarily unavailable",
	service.ReasonUnauthorized:          "Unauthorized",
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason string, err error, debug bool) {
	detail := ErrorDetail{
		Code:    reason,
		Message: reasonMessages[reason],
	}
	if debug && err != nil {
		detail.Detail = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: detail})
}
