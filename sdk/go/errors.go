package plantdesk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrNoToken is returned when no session token is found in the request.
	ErrNoToken = errors.New("plantdesk: no session token provided")

	// ErrTokenInvalid is returned when the session token is invalid or expired.
	ErrTokenInvalid = errors.New("plantdesk: token is invalid or expired")

	// ErrTokenForbidden is returned when the token is valid but the user lacks permission.
	ErrTokenForbidden = errors.New("plantdesk: access forbidden")
)

// Error codes sent by the server
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountLocked      = "account_locked"
	CodeAccountInactive    = "account_inactive"
	CodeUsernameTaken      = "username_taken"
	CodePasswordTooWeak    = "password_too_weak"
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeSystemBusy         = "system_busy"
	CodeRateLimited        = "rate_limit_exceeded"
)

// APIError represents an error response from the plantdesk API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plantdesk: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// apiErrorWrapper matches the plantdesk API error envelope.
type apiErrorWrapper struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       wrapper.Error.Code,
			Message:    wrapper.Error.Message,
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err is an APIError carrying code
func HasCode(err error, code string) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == code
}
