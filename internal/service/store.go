package service

import (
	"context"
	"fmt"
	"time"

	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/pool"
	"github.com/plantdesk/plantdesk/internal/repository"
)

// AccountStore persists accounts. Lockout mutations must be atomic per
// username.
type AccountStore interface {
	Create(ctx context.Context, account *model.Account) error
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ClearExpiredLock(ctx context.Context, username string, now time.Time) (bool, error)
	RecordFailure(ctx context.Context, username string, maxAttempts int, lockUntil, now time.Time) (int, *time.Time, error)
	RecordSuccess(ctx context.Context, username string, now time.Time) error
	Unlock(ctx context.Context, username string, now time.Time) error
	UpdatePassword(ctx context.Context, username, hash string, now time.Time) error
	ResetPassword(ctx context.Context, username, hash string, now time.Time) error
	UpdateRole(ctx context.Context, username string, role model.Role, now time.Time) error
	SetActive(ctx context.Context, username string, active bool, now time.Time) error
}

// AuditStore is the append-only security audit log
type AuditStore interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	List(ctx context.Context, filter model.AuditFilter) ([]model.AuditEvent, error)
}

// ActivityStore is the append-only user activity log
type ActivityStore interface {
	Append(ctx context.Context, record *model.ActivityRecord) error
}

// Stores groups the stores bound to one borrowed connection
type Stores struct {
	Accounts AccountStore
	Audit    AuditStore
	Activity ActivityStore
}

// StoreFactory binds stores to a connection taken from the pool
type StoreFactory func(conn pool.Conn) (Stores, error)

// ConnPool is the part of pool.Pool the service needs
type ConnPool interface {
	Acquire(ctx context.Context) (pool.Conn, error)
	Release(conn pool.Conn)
}

// PostgresStores binds the SQL repositories to a pooled database connection
func PostgresStores(conn pool.Conn) (Stores, error) {
	q, ok := conn.(repository.Querier)
	if !ok {
		return Stores{}, fmt.Errorf("connection %T cannot run queries", conn)
	}
	return Stores{
		Accounts: repository.NewAccountRepository(q),
		Audit:    repository.NewAuditRepository(q),
		Activity: repository.NewActivityRepository(q),
	}, nil
}
