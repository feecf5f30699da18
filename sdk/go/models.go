package plantdesk

import "time"

// User is an authenticated plantdesk account as reported by the API
type User struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"isActive,omitempty"`
}

// HasRole reports whether the user holds one of roles
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Roles understood by the server
const (
	RoleAdmin      = "ADMIN"
	RoleSupervisor = "SUPERVISOR"
	RoleOperator   = "OPERATOR"
	RoleUser       = "USER"
)

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// RegisterRequest contains the data for creating a new account.
type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

// LockState is an account's lockout state
type LockState struct {
	Username       string     `json:"username"`
	FailedAttempts int        `json:"failedAttempts"`
	Locked         bool       `json:"locked"`
	LockExpiry     *time.Time `json:"lockExpiry,omitempty"`
}

// AuditEvent is one entry of the security audit log
type AuditEvent struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Kind      string    `json:"kind"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditFilter narrows an audit listing. Zero values mean no filter.
type AuditFilter struct {
	Actor string
	Kind  string
	Limit int
}
