package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/plantdesk/plantdesk/internal/model"
)

// AccountRepository handles account persistence. Every lockout mutation is a
// single conditional statement keyed by username so concurrent attempts
// cannot lose updates.
type AccountRepository struct {
	db Querier
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	a.id, a.username, a.password_hash, COALESCE(a.legacy_password, ''), r.name,
	a.full_name, COALESCE(a.email, ''), COALESCE(a.department, ''), a.is_active,
	a.failed_attempts, a.lock_expiry, a.last_login, a.password_changed_at,
	a.created_at, a.updated_at`

// Create inserts a new account and fills in its ID
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, role, full_name, email, department,
		    is_active, failed_attempts, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		account.Username,
		account.PasswordHash,
		account.Role.String(),
		account.FullName,
		account.Email,
		account.Department,
		account.Active,
		account.FailedAttempts,
		account.PasswordChangedAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByUsername retrieves an account and its role by exact, case-sensitive username
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	query := `
		SELECT` + accountColumns + `
		FROM accounts a
		JOIN roles r ON r.name = a.role
		WHERE a.username = $1
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, username))
}

// ExistsByUsername checks if an account with the given username exists
func (r *AccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// ClearExpiredLock resets an account whose lock window ended at or before now.
// It reports whether an unlock happened.
func (r *AccountRepository) ClearExpiredLock(ctx context.Context, username string, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, lock_expiry = NULL, updated_at = $2
		WHERE username = $1 AND lock_expiry IS NOT NULL AND lock_expiry <= $2
	`
	result, err := r.db.ExecContext(ctx, query, username, now)
	if err != nil {
		return false, fmt.Errorf("failed to clear expired lock: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// RecordFailure increments the failed-attempt counter, capped at maxAttempts,
// and sets the lock expiry the moment the cap is reached. Locked accounts are
// left untouched; ErrNotFound is returned for them as well as for unknown
// usernames.
func (r *AccountRepository) RecordFailure(ctx context.Context, username string, maxAttempts int, lockUntil, now time.Time) (int, *time.Time, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = LEAST(failed_attempts + 1, $2),
		    lock_expiry = CASE WHEN failed_attempts + 1 >= $2 THEN $3::timestamptz ELSE NULL END,
		    updated_at = $4
		WHERE username = $1 AND (lock_expiry IS NULL OR lock_expiry <= $4)
		RETURNING failed_attempts, lock_expiry
	`
	var (
		attempts   int
		lockExpiry sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, username, maxAttempts, lockUntil, now).Scan(&attempts, &lockExpiry)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if lockExpiry.Valid {
		return attempts, &lockExpiry.Time, nil
	}
	return attempts, nil, nil
}

// RecordSuccess resets lockout state and stamps the login time
func (r *AccountRepository) RecordSuccess(ctx context.Context, username string, now time.Time) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, lock_expiry = NULL, last_login = $2, updated_at = $2
		WHERE username = $1
	`
	return r.execOne(ctx, "record successful login", query, username, now)
}

// Unlock unconditionally resets the failed-attempt counter and lock expiry
func (r *AccountRepository) Unlock(ctx context.Context, username string, now time.Time) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, lock_expiry = NULL, updated_at = $2
		WHERE username = $1
	`
	return r.execOne(ctx, "unlock account", query, username, now)
}

// UpdatePassword stores a new hash and drops any legacy plaintext credential
func (r *AccountRepository) UpdatePassword(ctx context.Context, username, hash string, now time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, legacy_password = NULL, password_changed_at = $3, updated_at = $3
		WHERE username = $1
	`
	return r.execOne(ctx, "update password", query, username, hash, now)
}

// ResetPassword stores a new hash and clears lockout state in one statement
func (r *AccountRepository) ResetPassword(ctx context.Context, username, hash string, now time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, legacy_password = NULL, password_changed_at = $3,
		    failed_attempts = 0, lock_expiry = NULL, updated_at = $3
		WHERE username = $1
	`
	return r.execOne(ctx, "reset password", query, username, hash, now)
}

// UpdateRole changes the account's role
func (r *AccountRepository) UpdateRole(ctx context.Context, username string, role model.Role, now time.Time) error {
	query := `UPDATE accounts SET role = $2, updated_at = $3 WHERE username = $1`
	return r.execOne(ctx, "update role", query, username, role.String(), now)
}

// SetActive toggles the account's active flag
func (r *AccountRepository) SetActive(ctx context.Context, username string, active bool, now time.Time) error {
	query := `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE username = $1`
	return r.execOne(ctx, "update active flag", query, username, active, now)
}

func (r *AccountRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAccount scans a single account row
func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		account  model.Account
		roleName string
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.LegacyPassword,
		&roleName,
		&account.FullName,
		&account.Email,
		&account.Department,
		&account.Active,
		&account.FailedAttempts,
		&account.LockExpiry,
		&account.LastLogin,
		&account.PasswordChangedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	role, err := model.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account.Username, err)
	}
	account.Role = role
	return &account, nil
}
