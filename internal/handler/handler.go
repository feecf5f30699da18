package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/service"
)

// PoolChecker reports whether a pooled connection can be borrowed
type PoolChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Pinger checks an optional dependency such as Redis
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	pool     PoolChecker
	rdb      Pinger
	log      *logger.Logger
	cfg      *config.Config
	authSvc  *service.AuthService
	tokenSvc *auth.TokenService
}

// New creates a new Handler instance. rdb may be nil.
func New(pool PoolChecker, rdb Pinger, log *logger.Logger, cfg *config.Config, authSvc *service.AuthService, tokenSvc *auth.TokenService) *Handler {
	return &Handler{
		pool:     pool,
		rdb:      rdb,
		log:      log.WithComponent("http"),
		cfg:      cfg,
		authSvc:  authSvc,
		tokenSvc: tokenSvc,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP responses.
// Messages are fixed strings so storage details never reach the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "The username or password is incorrect.")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account_locked", "Your account has been temporarily locked due to too many failed login attempts.")
	case errors.Is(err, service.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "account_inactive", "Your account is not active.")
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", "An account with this username already exists.")
	case errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "password_too_weak", err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Account not found.")
	case errors.Is(err, service.ErrSystemBusy):
		writeError(w, http.StatusServiceUnavailable, "system_busy", "The system is busy. Please try again shortly.")
	default:
		h.log.Error().Err(err).Str("op", op).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "The request could not be completed.")
	}
}
