package service

import "errors"

// Errors returned across the service boundary. Callers match them with
// errors.Is; storage and pool errors never escape untranslated.
var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrSystemBusy         = errors.New("system busy, try again shortly")
	ErrStorage            = errors.New("storage failure")
	ErrNotFound           = errors.New("account not found")
)

// errUserNotFound distinguishes an unknown username in the audit log only.
// It is reported to callers as ErrInvalidCredentials.
var errUserNotFound = errors.New("username not found")
