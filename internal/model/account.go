package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of roles an account can hold
type Role int

const (
	RoleUser Role = iota + 1
	RoleOperator
	RoleSupervisor
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleAdmin:      "ADMIN",
	RoleUser:       "USER",
	RoleSupervisor: "SUPERVISOR",
	RoleOperator:   "OPERATOR",
}

// Roles lists every valid role
func Roles() []Role {
	return []Role{RoleAdmin, RoleSupervisor, RoleOperator, RoleUser}
}

// String returns the stored name of the role
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole converts a stored or user-supplied role name into a Role
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN":
		return RoleAdmin, nil
	case "USER":
		return RoleUser, nil
	case "SUPERVISOR":
		return RoleSupervisor, nil
	case "OPERATOR":
		return RoleOperator, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Account represents a login-capable identity
type Account struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	PasswordHash      string     `json:"-"`
	LegacyPassword    string     `json:"-"` // plaintext from pre-migration records
	Role              Role       `json:"role"`
	FullName          string     `json:"fullName"`
	Email             string     `json:"email,omitempty"`
	Department        string     `json:"department,omitempty"`
	Active            bool       `json:"isActive"`
	FailedAttempts    int        `json:"-"`
	LockExpiry        *time.Time `json:"-"`
	LastLogin         *time.Time `json:"lastLogin,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsLocked reports whether the lock window is still open at now
func (a *Account) IsLocked(now time.Time) bool {
	if a.LockExpiry == nil {
		return false
	}
	return now.Before(*a.LockExpiry)
}

// Identity returns the caller-facing view of the account
func (a *Account) Identity() *Identity {
	return &Identity{
		Username:   a.Username,
		Role:       a.Role,
		FullName:   a.FullName,
		Email:      a.Email,
		Department: a.Department,
		IsActive:   a.Active,
	}
}

// Identity is what a successful authentication hands to the rest of the application
type Identity struct {
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"isActive"`
}

// LockState is the lockout fields of an account as seen by administrators
type LockState struct {
	Username       string     `json:"username"`
	FailedAttempts int        `json:"failedAttempts"`
	Locked         bool       `json:"locked"`
	LockExpiry     *time.Time `json:"lockExpiry,omitempty"`
}
