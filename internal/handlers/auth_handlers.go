package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/qcom/authgate/internal/middleware"
	"github.com/qcom/authgate/internal/models"
	"github.com/qcom/authgate/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	authService *service.AuthService
	logger      *logrus.Logger
}

func NewAuthHandlers(authService *service.AuthService, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RevokeRequest struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type,omitempty"`
}

type MeResponse struct {
	Username       string    `json:"username"`
	Scopes         []string  `json:"scopes"`
	TokenID        string    `json:"token_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	ActiveSessions int       `json:"active_sessions"`
}

// Login accepts JSON or a form-encoded OAuth2 password grant body.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Username and password are required")
		return
	}

	pair, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "missing_token", "Refresh token is required")
		return
	}

	pair, err := h.authService.RefreshAccess(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, pair)
}

// Revoke invalidates a single token held by the caller. Defaults to the
// refresh token type.
func (h *AuthHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "missing_token", "Token is required")
		return
	}

	tokenType := models.TokenTypeRefresh
	if req.TokenType != "" {
		parsed, err := models.ParseTokenType(req.TokenType)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_token_type", "Unknown token type")
			return
		}
		tokenType = parsed
	}

	if err := h.authService.RevokeToken(r.Context(), tokenType, req.Token); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Token revoked"})
}

// Logout revokes every token of the authenticated caller.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ReasonCredentialMissing, "Unauthorized")
		return
	}

	if err := h.authService.Logout(r.Context(), identity.Subject()); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ReasonCredentialMissing, "Unauthorized")
		return
	}

	sessions, err := h.authService.ActiveSessions(r.Context(), identity.Subject())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MeResponse{
		Username:       identity.Subject(),
		Scopes:         identity.Scopes(),
		TokenID:        identity.TokenID(),
		ExpiresAt:      identity.ExpiresAt(),
		ActiveSessions: sessions,
	})
}
