package handler

import (
	"net/http"
	"time"

	"github.com/plantdesk/plantdesk/internal/middleware"
	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"tokenType"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *model.Identity `json:"user"`
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	identity, err := h.authSvc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "login")
		return
	}

	token, expiresAt, err := h.tokenSvc.Issue(identity)
	if err != nil {
		h.log.Error().Err(err).Str("username", identity.Username).Msg("failed to issue session token")
		writeError(w, http.StatusInternalServerError, "internal_error", "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		User:      identity,
	})
}

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

// Register handles POST /api/v1/auth/register. Self-service accounts always
// get the USER role; administrators promote them afterwards.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	err := h.authSvc.Register(r.Context(), service.RegisterRequest{
		Username:   req.Username,
		Password:   req.Password,
		Role:       model.RoleUser,
		FullName:   req.FullName,
		Email:      req.Email,
		Department: req.Department,
	})
	if err != nil {
		h.writeServiceError(w, err, "register")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"username": req.Username,
		"role":     model.RoleUser.String(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles POST /api/v1/auth/password/change for the
// authenticated account
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username := middleware.Username(r.Context())
	if username == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req changePasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Current password and new password are required")
		return
	}

	err := h.authSvc.ChangePassword(r.Context(), service.ChangePasswordRequest{
		Username:        username,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.writeServiceError(w, err, "change password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCurrentUser handles GET /api/v1/users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	username := middleware.Username(r.Context())
	role, ok := middleware.RoleFrom(r.Context())
	if username == "" || !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"role":     role,
	})
}
