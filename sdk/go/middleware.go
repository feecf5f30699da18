package plantdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const (
	userContextKey  contextKey = "plantdesk_user"
	tokenContextKey contextKey = "plantdesk_token"
)

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	// SkipPaths is a list of path prefixes that do not require authentication.
	// Example: []string{"/health", "/public/"}
	SkipPaths []string

	// Roles, when set, restricts access to users holding one of them.
	// Other authenticated users get 403.
	Roles []string

	// TokenExtractor is an optional custom function to extract the session
	// token from a request. If nil, the Authorization bearer header is used.
	TokenExtractor func(r *http.Request) string

	// ErrorHandler is an optional custom handler for authentication failures.
	// If nil, a JSON error in the plantdesk envelope is written.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware returns net/http middleware that authenticates requests against
// the plantdesk server and stores the user in the request context.
//
// Retrieve the user in handlers with UserFrom(r.Context()).
func (client *Client) Middleware(cfgs ...MiddlewareConfig) func(http.Handler) http.Handler {
	cfg := MiddlewareConfig{}
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	extract := cfg.TokenExtractor
	if extract == nil {
		extract = BearerToken
	}
	fail := cfg.ErrorHandler
	if fail == nil {
		fail = writeAuthError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := extract(r)
			if token == "" {
				fail(w, r, ErrNoToken)
				return
			}

			user, err := client.ValidateToken(r.Context(), token)
			if err != nil {
				fail(w, r, err)
				return
			}

			if len(cfg.Roles) > 0 && !user.HasRole(cfg.Roles...) {
				fail(w, r, ErrTokenForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the authenticated user, or nil outside the middleware
func UserFrom(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// TokenFrom returns the raw session token, or "" outside the middleware
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// BearerToken reads the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	code := http.StatusUnauthorized
	message := "Authentication required"

	switch {
	case errors.Is(err, ErrTokenInvalid):
		message = "Invalid or expired token"
	case errors.Is(err, ErrTokenForbidden):
		code = http.StatusForbidden
		message = "Access forbidden"
	case !errors.Is(err, ErrNoToken):
		code = http.StatusBadGateway
		message = "Authentication service unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    "unauthorized",
			"message": message,
		},
	})
}
