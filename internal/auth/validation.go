package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrEmptyCredentials = errors.New("username and password are required")
	ErrInvalidUsername  = errors.New("username must be 3-50 characters of letters, digits or underscore")
	ErrInvalidEmail     = errors.New("email address is not valid")
	ErrPasswordTooShort = errors.New("password is too short")
)

// Username and password limits
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 8
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	unsafeChars     = strings.NewReplacer("'", "", `"`, "", `\`, "", ";", "")
)

// SanitizeUsername strips quote, backslash and semicolon characters and
// trims surrounding whitespace. Queries are always parameterised; this only narrows what ends
// up in logs and audit records.
func SanitizeUsername(username string) string {
	return strings.TrimSpace(unsafeChars.Replace(username))
}

// ValidateCredentials checks the login form before any storage access
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return ErrEmptyCredentials
	}
	return nil
}

// ValidateUsername checks a username chosen at registration
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks password length. A minLength below
// MinPasswordLength is raised to it.
func ValidatePassword(password string, minLength int) error {
	minLength = max(minLength, MinPasswordLength)
	if len(password) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, minLength)
	}
	return nil
}

// ValidateEmail checks an optional email address; empty is accepted
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > 255 || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
