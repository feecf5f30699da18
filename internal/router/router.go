package router

import (
	"net/http"

	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/handler"
	"github.com/plantdesk/plantdesk/internal/metrics"
	"github.com/plantdesk/plantdesk/internal/middleware"
	"github.com/plantdesk/plantdesk/internal/model"
)

// New creates and configures the HTTP router. m may be nil when metrics are
// disabled.
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config, tokenSvc *auth.TokenService, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// Public authentication routes (rate limited per client IP)
	loginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "login",
		Limit:  cfg.Security.RateLimiting.LoginLimit,
		Window: cfg.Security.RateLimiting.LoginWindow,
		KeyFn:  mw.IPKey,
	})
	registerRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "register",
		Limit:  cfg.Security.RateLimiting.LoginLimit,
		Window: cfg.Security.RateLimiting.LoginWindow,
		KeyFn:  mw.IPKey,
	})

	mux.Handle("POST /api/v1/auth/login", loginRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/v1/auth/register", registerRateLimit(http.HandlerFunc(h.Register)))

	// Protected routes (require auth)
	authMw := mw.Auth(tokenSvc)
	mux.Handle("POST /api/v1/auth/password/change", authMw(http.HandlerFunc(h.ChangePassword)))
	mux.Handle("GET /api/v1/users/me", authMw(http.HandlerFunc(h.GetCurrentUser)))

	// Admin routes check the stored role, not only the one in the token
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMw(mw.Current(mw.RequireRole(model.RoleAdmin)(fn)))
	}
	mux.Handle("POST /api/v1/admin/users/{username}/unlock", admin(h.AdminUnlockAccount))
	mux.Handle("PUT /api/v1/admin/users/{username}/role", admin(h.AdminSetRole))
	mux.Handle("PUT /api/v1/admin/users/{username}/active", admin(h.AdminSetActive))
	mux.Handle("POST /api/v1/admin/users/{username}/password", admin(h.AdminResetPassword))
	mux.Handle("GET /api/v1/admin/users/{username}/lock", admin(h.AdminLockStatus))
	mux.Handle("GET /api/v1/admin/audit", admin(h.AdminAuditTrail))

	// Apply middleware stack, innermost first
	var handler http.Handler = mux

	if m != nil {
		handler = m.Instrument(handler)
	}

	handler = mw.SecurityHeaders(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
