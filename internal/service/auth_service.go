package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/pool"
	"github.com/plantdesk/plantdesk/internal/repository"
)

// Authentication outcomes reported to a Recorder
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid_credentials"
	OutcomeLocked   = "locked"
	OutcomeInactive = "inactive"
	OutcomeBusy     = "busy"
	OutcomeError    = "error"
)

// Recorder receives authentication outcomes, typically for metrics
type Recorder interface {
	AuthAttempt(outcome string)
	AccountLocked()
}

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string) {}
func (nopRecorder) AccountLocked()     {}

// AuthService authenticates accounts with brute-force lockout and manages
// their credentials. Every call borrows one pooled connection and returns it
// before the call ends.
type AuthService struct {
	pool     ConnPool
	stores   StoreFactory
	hasher   *auth.Hasher
	cfg      config.SecurityConfig
	log      *logger.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures an AuthService
type Option func(*AuthService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithRecorder reports authentication outcomes to r
func WithRecorder(r Recorder) Option {
	return func(s *AuthService) { s.recorder = r }
}

// NewAuthService creates a new AuthService
func NewAuthService(p ConnPool, stores StoreFactory, cfg config.SecurityConfig, log *logger.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		pool:     p,
		stores:   stores,
		hasher:   auth.NewHasher(cfg.Password),
		cfg:      cfg,
		log:      log.WithComponent("auth_service"),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest contains the data for registering a new account
type RegisterRequest struct {
	Username   string
	Password   string
	Role       model.Role
	FullName   string
	Email      string
	Department string
}

// ChangePasswordRequest contains the data for a password change. When
// CurrentPassword is set it must match before the change is applied.
type ChangePasswordRequest struct {
	Username        string
	CurrentPassword string
	NewPassword     string
}

// session is one borrowed connection and the stores bound to it
type session struct {
	conn pool.Conn
	Stores
}

// borrow acquires a connection and binds the stores to it. Failures are
// logged here and reported as bare sentinels so driver text stays inside.
func (s *AuthService) borrow(ctx context.Context) (*session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.log.Warn().Err(err).Msg("No connection available")
			return nil, ErrSystemBusy
		default:
			s.log.Error().Err(err).Msg("Failed to acquire connection")
			return nil, ErrStorage
		}
	}
	stores, err := s.stores(conn)
	if err != nil {
		s.pool.Release(conn)
		s.log.Error().Err(err).Msg("Failed to bind stores to connection")
		return nil, ErrStorage
	}
	return &session{conn: conn, Stores: stores}, nil
}

func (s *AuthService) giveBack(sess *session) {
	s.pool.Release(sess.conn)
}

// audit writes an event to the log and, when a session is available, to the
// audit table. A failed insert is logged and never changes the outcome.
func (s *AuthService) audit(ctx context.Context, sess *session, actor string, kind model.AuditKind, success bool, detail string) {
	event := model.NewAuditEvent(uuid.New().String(), actor, kind, success, detail, s.now())
	s.log.Audit(event.Actor, string(event.Kind), event.Success, event.Detail)
	if sess == nil {
		return
	}
	if err := sess.Audit.Append(ctx, event); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to write audit event")
	}
}

// auditDetached borrows a connection only to write one audit event
func (s *AuthService) auditDetached(ctx context.Context, actor string, kind model.AuditKind, success bool, detail string) {
	sess, err := s.borrow(ctx)
	if err != nil {
		s.audit(ctx, nil, actor, kind, success, detail)
		return
	}
	defer s.giveBack(sess)
	s.audit(ctx, sess, actor, kind, success, detail)
}

func (s *AuthService) activity(ctx context.Context, sess *session, accountID int64, activity model.Activity, detail string) {
	record := &model.ActivityRecord{AccountID: accountID, Activity: activity, Detail: detail, CreatedAt: s.now()}
	if err := sess.Activity.Append(ctx, record); err != nil {
		s.log.Error().Err(err).Str("activity", string(activity)).Msg("Failed to write activity record")
	}
}

// Authenticate checks a username and password and returns the account's
// identity. Unknown usernames and wrong passwords both fail with
// ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.Identity, error) {
	username = auth.SanitizeUsername(username)

	if err := auth.ValidateCredentials(username, password); err != nil {
		s.auditDetached(ctx, username, model.AuditLoginAttempt, false, "Empty credentials")
		s.recorder.AuthAttempt(OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrValidation)
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		s.audit(ctx, nil, username, model.AuditLoginError, false, "Connection unavailable")
		s.recordBorrowFailure(err)
		return nil, err
	}
	defer s.giveBack(sess)

	identity, err := s.authenticate(ctx, sess, username, password)
	switch {
	case err == nil:
		s.recorder.AuthAttempt(OutcomeSuccess)
	case errors.Is(err, errUserNotFound):
		s.recorder.AuthAttempt(OutcomeInvalid)
		return nil, ErrInvalidCredentials
	case errors.Is(err, ErrInvalidCredentials):
		s.recorder.AuthAttempt(OutcomeInvalid)
	case errors.Is(err, ErrAccountLocked):
		s.recorder.AuthAttempt(OutcomeLocked)
	case errors.Is(err, ErrAccountInactive):
		s.recorder.AuthAttempt(OutcomeInactive)
	default:
		s.log.Error().Err(err).Str("username", username).Msg("Authentication failed with storage error")
		s.audit(ctx, sess, username, model.AuditLoginError, false, "System error during authentication")
		s.recorder.AuthAttempt(OutcomeError)
		return nil, ErrStorage
	}
	return identity, err
}

func (s *AuthService) authenticate(ctx context.Context, sess *session, username, password string) (*model.Identity, error) {
	now := s.now()

	unlocked, err := sess.Accounts.ClearExpiredLock(ctx, username, now)
	if err != nil {
		return nil, err
	}
	if unlocked {
		s.audit(ctx, sess, username, model.AuditAccountUnlocked, true, "Lock expired")
	}

	account, err := sess.Accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		s.audit(ctx, sess, username, model.AuditLoginFailed, false, "Username not found")
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if account.IsLocked(now) {
		s.audit(ctx, sess, username, model.AuditLoginBlocked, false,
			fmt.Sprintf("Account locked until %s", account.LockExpiry.UTC().Format(time.RFC3339)))
		return nil, ErrAccountLocked
	}

	matched, legacy, err := s.verify(account, password)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, s.recordFailure(ctx, sess, username, now)
	}

	if !account.Active {
		s.audit(ctx, sess, username, model.AuditLoginFailed, false, "Account inactive")
		return nil, ErrAccountInactive
	}

	if err := sess.Accounts.RecordSuccess(ctx, username, now); err != nil {
		return nil, err
	}
	if legacy || s.hasher.NeedsRehash(account.PasswordHash) {
		s.upgradeCredential(ctx, sess, username, password, now)
	}

	s.audit(ctx, sess, username, model.AuditLoginSuccess, true, "Login successful")
	s.activity(ctx, sess, account.ID, model.ActivityLogin, "Successful login")

	return account.Identity(), nil
}

// verify checks password against the account's stored credential. legacy is
// true when the match came from the plaintext column.
func (s *AuthService) verify(account *model.Account, password string) (matched, legacy bool, err error) {
	if account.PasswordHash == "" {
		if !s.cfg.Password.LegacyPlaintextFallback || account.LegacyPassword == "" {
			return false, false, nil
		}
		ok := subtle.ConstantTimeCompare([]byte(account.LegacyPassword), []byte(password)) == 1
		return ok, ok, nil
	}
	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return false, false, fmt.Errorf("stored hash for %s: %w", account.Username, err)
	}
	return ok, false, nil
}

func (s *AuthService) recordFailure(ctx context.Context, sess *session, username string, now time.Time) error {
	maxAttempts := s.cfg.Lockout.MaxLoginAttempts
	attempts, lockExpiry, err := sess.Accounts.RecordFailure(ctx, username, maxAttempts, now.Add(s.cfg.Lockout.Duration()), now)
	if errors.Is(err, repository.ErrNotFound) {
		s.audit(ctx, sess, username, model.AuditLoginFailed, false, "Invalid password (account locked concurrently)")
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	s.audit(ctx, sess, username, model.AuditLoginFailed, false,
		fmt.Sprintf("Invalid password (attempt %d of %d)", attempts, maxAttempts))
	if lockExpiry != nil {
		s.audit(ctx, sess, username, model.AuditAccountLocked, true,
			fmt.Sprintf("Locked after %d failed attempts until %s", attempts, lockExpiry.UTC().Format(time.RFC3339)))
		s.recorder.AccountLocked()
	}
	return ErrInvalidCredentials
}

// upgradeCredential rewrites a credential that just matched with the
// configured scheme. It covers plaintext rows and hashes from the other scheme.
func (s *AuthService) upgradeCredential(ctx context.Context, sess *session, username, password string, now time.Time) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = sess.Accounts.UpdatePassword(ctx, username, hash, now)
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("Failed to upgrade credential")
		return
	}
	s.log.Info().Str("username", username).Str("scheme", s.hasher.Scheme()).Msg("Upgraded credential")
}

func (s *AuthService) recordBorrowFailure(err error) {
	if errors.Is(err, ErrSystemBusy) {
		s.recorder.AuthAttempt(OutcomeBusy)
		return
	}
	s.recorder.AuthAttempt(OutcomeError)
}

// Register creates a new active account with no failed attempts. A zero Role
// registers a USER.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) error {
	username := strings.TrimSpace(req.Username)
	if req.Role == 0 {
		req.Role = model.RoleUser
	}

	if err := s.validateRegistration(username, req); err != nil {
		s.auditDetached(ctx, username, model.AuditRegistrationFailed, false, err.Error())
		return err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to hash password")
		return ErrStorage
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	exists, err := sess.Accounts.ExistsByUsername(ctx, username)
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditRegistrationFailed, "register", err)
	}
	if exists {
		s.audit(ctx, sess, username, model.AuditRegistrationFailed, false, "Username already exists")
		return ErrUsernameTaken
	}

	now := s.now()
	account := &model.Account{
		Username:          username,
		PasswordHash:      hash,
		Role:              req.Role,
		FullName:          strings.TrimSpace(req.FullName),
		Email:             strings.TrimSpace(req.Email),
		Department:        strings.TrimSpace(req.Department),
		Active:            true,
		PasswordChangedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = sess.Accounts.Create(ctx, account)
	if errors.Is(err, repository.ErrDuplicate) {
		s.audit(ctx, sess, username, model.AuditRegistrationFailed, false, "Username already exists")
		return ErrUsernameTaken
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditRegistrationFailed, "register", err)
	}

	s.audit(ctx, sess, username, model.AuditUserRegistered, true,
		fmt.Sprintf("Registered with role %s", account.Role))
	return nil
}

func (s *AuthService) validateRegistration(username string, req RegisterRequest) error {
	if err := auth.ValidateUsername(username); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := auth.ValidatePassword(req.Password, s.cfg.Password.MinLength); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	if err := auth.ValidateEmail(strings.TrimSpace(req.Email)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrValidation)
	}
	return nil
}

// ChangePassword stores a new password for the account
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	username := auth.SanitizeUsername(req.Username)

	if err := auth.ValidatePassword(req.NewPassword, s.cfg.Password.MinLength); err != nil {
		s.auditDetached(ctx, username, model.AuditPasswordChangeFailed, false, err.Error())
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	account, err := sess.Accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		s.audit(ctx, sess, username, model.AuditPasswordChangeFailed, false, "Username not found")
		return ErrNotFound
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditPasswordChangeFailed, "change password", err)
	}

	if req.CurrentPassword != "" {
		matched, _, err := s.verify(account, req.CurrentPassword)
		if err != nil {
			return s.storageFailure(ctx, sess, username, model.AuditPasswordChangeFailed, "change password", err)
		}
		if !matched {
			s.audit(ctx, sess, username, model.AuditPasswordChangeFailed, false, "Current password incorrect")
			return ErrInvalidCredentials
		}
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to hash password")
		return ErrStorage
	}
	if err := sess.Accounts.UpdatePassword(ctx, username, hash, s.now()); err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditPasswordChangeFailed, "change password", err)
	}

	s.audit(ctx, sess, username, model.AuditPasswordChanged, true, "Password changed")
	s.activity(ctx, sess, account.ID, model.ActivityPasswordChanged, "Password changed")
	return nil
}

// ForceUnlock clears the failed-attempt counter and lock expiry whatever the
// account's current state
func (s *AuthService) ForceUnlock(ctx context.Context, username, actor string) error {
	username = auth.SanitizeUsername(username)

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	err = sess.Accounts.Unlock(ctx, username, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		s.audit(ctx, sess, username, model.AuditAccountForceUnlocked, false, "Username not found")
		return ErrNotFound
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditAccountForceUnlocked, "force unlock", err)
	}

	s.audit(ctx, sess, username, model.AuditAccountForceUnlocked, true, byActor("Account unlocked", actor))
	return nil
}

// SetRole changes an account's role
func (s *AuthService) SetRole(ctx context.Context, username string, role model.Role, actor string) error {
	username = auth.SanitizeUsername(username)
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrValidation)
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	err = sess.Accounts.UpdateRole(ctx, username, role, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditRoleChanged, "set role", err)
	}

	s.audit(ctx, sess, username, model.AuditRoleChanged, true, byActor("Role set to "+role.String(), actor))
	return nil
}

// SetActive toggles whether an account may log in
func (s *AuthService) SetActive(ctx context.Context, username string, active bool, actor string) error {
	username = auth.SanitizeUsername(username)
	kind, detail := model.AuditAccountDeactivated, "Account deactivated"
	if active {
		kind, detail = model.AuditAccountActivated, "Account activated"
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	err = sess.Accounts.SetActive(ctx, username, active, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, kind, "set active", err)
	}

	s.audit(ctx, sess, username, kind, true, byActor(detail, actor))
	return nil
}

// ResetPassword sets a new password on behalf of an administrator and clears
// any lockout
func (s *AuthService) ResetPassword(ctx context.Context, username, newPassword, actor string) error {
	username = auth.SanitizeUsername(username)
	if err := auth.ValidatePassword(newPassword, s.cfg.Password.MinLength); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to hash password")
		return ErrStorage
	}

	sess, err := s.borrow(ctx)
	if err != nil {
		return err
	}
	defer s.giveBack(sess)

	account, err := sess.Accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditPasswordReset, "reset password", err)
	}

	if err := sess.Accounts.ResetPassword(ctx, username, hash, s.now()); err != nil {
		return s.storageFailure(ctx, sess, username, model.AuditPasswordReset, "reset password", err)
	}

	s.audit(ctx, sess, username, model.AuditPasswordReset, true, byActor("Password reset", actor))
	s.activity(ctx, sess, account.ID, model.ActivityPasswordChanged, byActor("Password reset", actor))
	return nil
}

// CurrentIdentity returns the stored identity of username, for callers that
// must not rely on a role or active flag captured earlier
func (s *AuthService) CurrentIdentity(ctx context.Context, username string) (*model.Identity, error) {
	sess, err := s.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer s.giveBack(sess)

	account, err := sess.Accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("Failed to load account")
		return nil, ErrStorage
	}
	return account.Identity(), nil
}

// LockStatus reports an account's lockout fields
func (s *AuthService) LockStatus(ctx context.Context, username string) (*model.LockState, error) {
	username = auth.SanitizeUsername(username)

	sess, err := s.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer s.giveBack(sess)

	account, err := sess.Accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("Failed to read lock status")
		return nil, ErrStorage
	}

	now := s.now()
	state := &model.LockState{
		Username:       account.Username,
		FailedAttempts: account.FailedAttempts,
		Locked:         account.IsLocked(now),
	}
	if state.Locked {
		state.LockExpiry = account.LockExpiry
	}
	return state, nil
}

// AuditTrail lists audit events, most recent first
func (s *AuthService) AuditTrail(ctx context.Context, filter model.AuditFilter) ([]model.AuditEvent, error) {
	filter.Limit = repository.ClampAuditLimit(filter.Limit)
	filter.Actor = strings.TrimSpace(filter.Actor)

	sess, err := s.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer s.giveBack(sess)

	events, err := sess.Audit.List(ctx, filter)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list audit events")
		return nil, ErrStorage
	}
	return events, nil
}

// storageFailure logs and audits an unexpected storage error and hides it
// behind ErrStorage
func (s *AuthService) storageFailure(ctx context.Context, sess *session, username string, kind model.AuditKind, op string, err error) error {
	s.log.Error().Err(err).Str("username", username).Str("op", op).Msg("Storage error")
	s.audit(ctx, sess, username, kind, false, "System error")
	return ErrStorage
}

func byActor(detail, actor string) string {
	if actor == "" {
		return detail
	}
	return detail + " by " + actor
}
