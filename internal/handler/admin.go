package handler

import (
	"net/http"
	"strconv"

	"github.com/plantdesk/plantdesk/internal/middleware"
	"github.com/plantdesk/plantdesk/internal/model"
)

// AdminUnlockAccount handles POST /api/v1/admin/users/{username}/unlock
func (h *Handler) AdminUnlockAccount(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	admin := middleware.Username(r.Context())

	if err := h.authSvc.ForceUnlock(r.Context(), username, admin); err != nil {
		h.writeServiceError(w, err, "force unlock")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Account unlocked successfully",
		"username": username,
	})
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

// AdminSetRole handles PUT /api/v1/admin/users/{username}/role
func (h *Handler) AdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Role must be one of ADMIN, SUPERVISOR, OPERATOR, USER")
		return
	}

	username := r.PathValue("username")
	if err := h.authSvc.SetRole(r.Context(), username, req.Role, middleware.Username(r.Context())); err != nil {
		h.writeServiceError(w, err, "set role")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"role":     req.Role,
	})
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// AdminSetActive handles PUT /api/v1/admin/users/{username}/active
func (h *Handler) AdminSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := readJSON(r, &req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Field active is required")
		return
	}

	username := r.PathValue("username")
	if err := h.authSvc.SetActive(r.Context(), username, *req.Active, middleware.Username(r.Context())); err != nil {
		h.writeServiceError(w, err, "set active")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"active":   *req.Active,
	})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// AdminResetPassword handles POST /api/v1/admin/users/{username}/password
func (h *Handler) AdminResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	username := r.PathValue("username")
	if err := h.authSvc.ResetPassword(r.Context(), username, req.NewPassword, middleware.Username(r.Context())); err != nil {
		h.writeServiceError(w, err, "reset password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminLockStatus handles GET /api/v1/admin/users/{username}/lock
func (h *Handler) AdminLockStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.authSvc.LockStatus(r.Context(), r.PathValue("username"))
	if err != nil {
		h.writeServiceError(w, err, "lock status")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AdminAuditTrail handles GET /api/v1/admin/audit?actor=&kind=&limit=
func (h *Handler) AdminAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AuditFilter{
		Actor: q.Get("actor"),
		Kind:  model.AuditKind(q.Get("kind")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		filter.Limit = limit
	}

	events, err := h.authSvc.AuditTrail(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "audit trail")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
