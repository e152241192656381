package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qcom/authgate/internal/service"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithServiceError maps a service error to a response. Unknown
// errors are logged and reported as 500.
func respondWithServiceError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
	case errors.Is(err, service.ErrInvalidUser):
		respondWithError(w, http.StatusBadRequest, "invalid_user", err.Error())
	case errors.Is(err, service.ErrUserExists):
		respondWithError(w, http.StatusConflict, "user_exists", "User already exists")
	case errors.Is(err, service.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, service.ErrDependencyUnavailable):
		logger.WithError(err).Error("Token store unavailable")
		respondWithError(w, http.StatusServiceUnavailable, service.ReasonDependencyUnavailable, "Service temporarily unavailable")
	case service.Forged(err):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respondWithError(w, http.StatusForbidden, service.Reason(err), "Invalid token")
	case service.Refreshable(err):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respondWithError(w, http.StatusUnauthorized, service.Reason(err), "Token is no longer valid")
	default:
		logger.WithError(err).Error("Request failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
