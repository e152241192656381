package handlers

import (
	"net/http"

	"github.com/qcom/authgate/internal/service"
	"github.com/sirupsen/logrus"
)

type UserHandlers struct {
	authService *service.AuthService
	logger      *logrus.Logger
}

func NewUserHandlers(authService *service.AuthService, logger *logrus.Logger) *UserHandlers {
	return &UserHandlers{
		authService: authService,
		logger:      logger,
	}
}

type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

type SelectUserRequest struct {
	Username string `json:"username"`
}

type DeleteUserRequest struct {
	Username string `json:"username"`
}

// UpdateUserRequest leaves absent fields untouched.
type UpdateUserRequest struct {
	Username string    `json:"username"`
	Email    *string   `json:"email,omitempty"`
	Password *string   `json:"password,omitempty"`
	Scopes   *[]string `json:"scopes,omitempty"`
}

func (h *UserHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.authService.CreateUser(r.Context(), service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Scopes:   req.Scopes,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, user)
}

func (h *UserHandlers) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectUserRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Username is required")
		return
	}

	user, err := h.authService.GetUser(r.Context(), req.Username)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Username is required")
		return
	}

	user, err := h.authService.UpdateUser(r.Context(), req.Username, service.UpdateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Scopes:   req.Scopes,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

// Delete removes a user and revokes every token it holds.
func (h *UserHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Username is required")
		return
	}

	if err := h.authService.DeleteUser(r.Context(), req.Username); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "User deleted"})
}
