// Package memory is an in-process store with the same semantics as the SQL
// repositories. It backs tests and local tooling that run without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/repository"
)

// Store holds accounts, audit events and activity records behind one mutex
type Store struct {
	mu         sync.Mutex
	accounts   map[string]*model.Account
	nextID     int64
	events     []model.AuditEvent
	activities []model.ActivityRecord
	fail       error
	failAcct   error

	Accounts *Accounts
	Audit    *AuditLog
	Activity *ActivityLog
}

// New creates an empty Store
func New() *Store {
	s := &Store{accounts: make(map[string]*model.Account)}
	s.Accounts = &Accounts{s: s}
	s.Audit = &AuditLog{s: s}
	s.Activity = &ActivityLog{s: s}
	return s
}

// FailWith makes every subsequent operation return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// FailAccountsWith makes only account operations return err, so audit and
// activity writes still land. Pass nil to recover.
func (s *Store) FailAccountsWith(err error) {
	s.mu.Lock()
	s.failAcct = err
	s.mu.Unlock()
}

// accountsErr must be called with mu held
func (s *Store) accountsErr() error {
	if s.fail != nil {
		return s.fail
	}
	return s.failAcct
}

// Account returns a copy of the stored account
func (s *Store) Account(username string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return model.Account{}, false
	}
	return copyAccount(a), true
}

// Events returns every audit event in insertion order
func (s *Store) Events() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEvent(nil), s.events...)
}

// Activities returns every activity record in insertion order
func (s *Store) Activities() []model.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ActivityRecord(nil), s.activities...)
}

func copyAccount(a *model.Account) model.Account {
	c := *a
	if a.LockExpiry != nil {
		t := *a.LockExpiry
		c.LockExpiry = &t
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	if a.PasswordChangedAt != nil {
		t := *a.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	return c
}

// Accounts implements the account store
type Accounts struct {
	s *Store
}

// with runs fn under the store lock with the named account
func (r *Accounts) with(username string, fn func(a *model.Account)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.accountsErr(); err != nil {
		return err
	}
	a, ok := r.s.accounts[username]
	if !ok {
		return repository.ErrNotFound
	}
	fn(a)
	return nil
}

// Create inserts a new account and fills in its ID
func (r *Accounts) Create(_ context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.accountsErr(); err != nil {
		return err
	}
	if _, ok := r.s.accounts[account.Username]; ok {
		return repository.ErrDuplicate
	}
	r.s.nextID++
	account.ID = r.s.nextID
	stored := copyAccount(account)
	r.s.accounts[account.Username] = &stored
	return nil
}

// GetByUsername returns a copy of the account
func (r *Accounts) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	var out model.Account
	err := r.with(username, func(a *model.Account) { out = copyAccount(a) })
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExistsByUsername reports whether the username is taken
func (r *Accounts) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// ClearExpiredLock resets an account whose lock has expired
func (r *Accounts) ClearExpiredLock(_ context.Context, username string, now time.Time) (bool, error) {
	unlocked := false
	err := r.with(username, func(a *model.Account) {
		if a.LockExpiry != nil && !a.LockExpiry.After(now) {
			a.FailedAttempts = 0
			a.LockExpiry = nil
			a.UpdatedAt = now
			unlocked = true
		}
	})
	if err == repository.ErrNotFound {
		return false, nil
	}
	return unlocked, err
}

// RecordFailure counts a failed attempt and locks at maxAttempts. Locked
// accounts are untouched and reported as ErrNotFound.
func (r *Accounts) RecordFailure(_ context.Context, username string, maxAttempts int, lockUntil, now time.Time) (int, *time.Time, error) {
	var (
		attempts int
		expiry   *time.Time
		locked   bool
	)
	err := r.with(username, func(a *model.Account) {
		if a.LockExpiry != nil && a.LockExpiry.After(now) {
			locked = true
			return
		}
		a.FailedAttempts++
		a.LockExpiry = nil
		if a.FailedAttempts >= maxAttempts {
			a.FailedAttempts = maxAttempts
			t := lockUntil
			a.LockExpiry = &t
			expiry = &lockUntil
		}
		a.UpdatedAt = now
		attempts = a.FailedAttempts
	})
	if err != nil {
		return 0, nil, err
	}
	if locked {
		return 0, nil, repository.ErrNotFound
	}
	return attempts, expiry, nil
}

// RecordSuccess resets lockout state and stamps the login time
func (r *Accounts) RecordSuccess(_ context.Context, username string, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.FailedAttempts = 0
		a.LockExpiry = nil
		t := now
		a.LastLogin = &t
		a.UpdatedAt = now
	})
}

// Unlock clears lockout state
func (r *Accounts) Unlock(_ context.Context, username string, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.FailedAttempts = 0
		a.LockExpiry = nil
		a.UpdatedAt = now
	})
}

// UpdatePassword stores a new hash and drops any legacy credential
func (r *Accounts) UpdatePassword(_ context.Context, username, hash string, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.PasswordHash = hash
		a.LegacyPassword = ""
		t := now
		a.PasswordChangedAt = &t
		a.UpdatedAt = now
	})
}

// ResetPassword stores a new hash and clears lockout state
func (r *Accounts) ResetPassword(_ context.Context, username, hash string, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.PasswordHash = hash
		a.LegacyPassword = ""
		t := now
		a.PasswordChangedAt = &t
		a.FailedAttempts = 0
		a.LockExpiry = nil
		a.UpdatedAt = now
	})
}

// UpdateRole changes the account's role
func (r *Accounts) UpdateRole(_ context.Context, username string, role model.Role, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.Role = role
		a.UpdatedAt = now
	})
}

// SetActive toggles the active flag
func (r *Accounts) SetActive(_ context.Context, username string, active bool, now time.Time) error {
	return r.with(username, func(a *model.Account) {
		a.Active = active
		a.UpdatedAt = now
	})
}

// AuditLog implements the audit store
type AuditLog struct {
	s *Store
}

// Append records an event
func (r *AuditLog) Append(_ context.Context, event *model.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	r.s.events = append(r.s.events, *event)
	return nil
}

// List returns matching events, most recent first
func (r *AuditLog) List(_ context.Context, filter model.AuditFilter) ([]model.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}

	var out []model.AuditEvent
	for i := len(r.s.events) - 1; i >= 0; i-- {
		e := r.s.events[i]
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := repository.ClampAuditLimit(filter.Limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActivityLog implements the activity store
type ActivityLog struct {
	s *Store
}

// Append records an activity
func (r *ActivityLog) Append(_ context.Context, record *model.ActivityRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	r.s.activities = append(r.s.activities, *record)
	return nil
}
