package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/service"
)

// Context keys for authenticated session data
const (
	UsernameKey contextKey = "username"
	RoleKey     contextKey = "role"
)

// Auth validates the bearer session token and stores the username and role
// in the request context
func (m *Middleware) Auth(tokenSvc *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}

			if tokenString == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			claims, err := tokenSvc.Validate(tokenString)
			if err != nil {
				m.log.Debug().Err(err).Msg("token validation failed")
				writeJSONError(w, http.StatusUnauthorized, "token_invalid", "The session token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), UsernameKey, claims.Subject)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Current replaces the token's role with the stored one and rejects
// sessions whose account was deactivated or removed after the token was
// issued. It must run after Auth and is a no-op without WithAccounts.
func (m *Middleware) Current(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.accounts == nil {
			next.ServeHTTP(w, r)
			return
		}
		username := Username(r.Context())
		if username == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		identity, err := m.accounts.CurrentIdentity(r.Context(), username)
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeJSONError(w, http.StatusUnauthorized, "token_invalid", "The session token is invalid or expired")
			return
		case errors.Is(err, service.ErrSystemBusy):
			writeJSONError(w, http.StatusServiceUnavailable, "system_busy", "System busy, please try again")
			return
		case err != nil:
			m.log.Error().Err(err).Str("username", username).Msg("failed to load session account")
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
			return
		case !identity.IsActive:
			writeJSONError(w, http.StatusForbidden, "account_inactive", "Account is not active")
			return
		}

		ctx := context.WithValue(r.Context(), RoleKey, identity.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated requests whose role is not listed. It
// must run after Auth.
func (m *Middleware) RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFrom(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.log.Warn().Str("username", Username(r.Context())).Str("role", role.String()).
				Str("path", r.URL.Path).Msg("role check failed")
			writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role")
		})
	}
}

// Username returns the authenticated username from context
func Username(ctx context.Context) string {
	if name, ok := ctx.Value(UsernameKey).(string); ok {
		return name
	}
	return ""
}

// RoleFrom returns the authenticated role from context
func RoleFrom(ctx context.Context) (model.Role, bool) {
	role, ok := ctx.Value(RoleKey).(model.Role)
	return role, ok
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
