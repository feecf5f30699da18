package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/handler"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/metrics"
	"github.com/plantdesk/plantdesk/internal/middleware"
	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/pool"
	"github.com/plantdesk/plantdesk/internal/repository/memory"
	"github.com/plantdesk/plantdesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ closed atomic.Bool }

func (c *fakeConn) Closed() bool { return c.closed.Load() }
func (c *fakeConn) Close() error { c.closed.Store(true); return nil }

type server struct {
	t       *testing.T
	handler http.Handler
	svc     *service.AuthService
	store   *memory.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Security.Lockout = config.LockoutConfig{MaxLoginAttempts: 3, DurationMinutes: 30}
	cfg.Security.Password = config.PasswordConfig{MinLength: 8, Scheme: auth.SchemeStaticSHA256, Salt: "router-salt"}
	cfg.Security.Tokens = config.TokenConfig{
		Secret:   strings.Repeat("r", 32),
		TTL:      time.Hour,
		Issuer:   "plantdesk",
		Audience: "plantdesk-desktop",
	}

	m := metrics.New("plantdesk")
	p, err := pool.New(context.Background(), func(context.Context) (pool.Conn, error) {
		return &fakeConn{}, nil
	}, pool.Config{MinConnections: 1, MaxConnections: 4, AcquireRetries: 50, AcquireRetryDelay: time.Millisecond}, pool.WithObserver(m))
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown() })
	m.WatchPool("plantdesk", p)

	store := memory.New()
	stores := func(pool.Conn) (service.Stores, error) {
		return service.Stores{Accounts: store.Accounts, Audit: store.Audit, Activity: store.Activity}, nil
	}
	log := logger.Nop()
	svc := service.NewAuthService(p, stores, cfg.Security, log, service.WithRecorder(m))
	tokens, err := auth.NewTokenService(cfg.Security.Tokens)
	require.NoError(t, err)

	h := handler.New(p, nil, log, cfg, svc, tokens)
	mw := middleware.New(nil, log, cfg, middleware.WithAccounts(svc))
	return &server{t: t, handler: New(h, mw, cfg, tokens, m), svc: svc, store: store}
}

func (s *server) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(username, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string          `json:"token"`
		User  *model.Identity `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"healthy"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "line_op", "password": "longenough", "email": "op@plant.example",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "line_op", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "username_taken", errorCode(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "x", "password": "longenough"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	token := s.login("line_op", "longenough")

	rec = s.do(http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"line_op","role":"USER"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.svc.Register(context.Background(), service.RegisterRequest{Username: "alice", Password: "Correct#1pw"}))

	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	ghostBody := rec.Body.String()

	for i := 0; i < 3; i++ {
		rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "whatever"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, ghostBody, rec.Body.String(), "unknown user and wrong password must look identical")

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "Correct#1pw"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "account_locked", errorCode(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "", "password": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"user": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.svc.Register(context.Background(), service.RegisterRequest{Username: "alice", Password: "Correct#1pw"}))
	token := s.login("alice", "Correct#1pw")

	rec := s.do(http.MethodPost, "/api/v1/auth/password/change", token, map[string]string{
		"currentPassword": "Correct#1pw", "newPassword": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password_too_weak", errorCode(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/auth/password/change", token, map[string]string{
		"currentPassword": "Correct#1pw", "newPassword": "Brand#New9pw",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	s.login("alice", "Brand#New9pw")
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.NoError(t, s.svc.Register(ctx, service.RegisterRequest{Username: "root_admin", Password: "Admin#Pass1", Role: model.RoleAdmin}))
	require.NoError(t, s.svc.Register(ctx, service.RegisterRequest{Username: "alice", Password: "Correct#1pw"}))

	adminToken := s.login("root_admin", "Admin#Pass1")
	userToken := s.login("alice", "Correct#1pw")

	rec := s.do(http.MethodPost, "/api/v1/admin/users/alice/unlock", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 3; i++ {
		s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	}

	rec = s.do(http.MethodGet, "/api/v1/admin/users/alice/lock", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state model.LockState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Locked)
	assert.Equal(t, 3, state.FailedAttempts)

	rec = s.do(http.MethodPost, "/api/v1/admin/users/alice/unlock", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	s.login("alice", "Correct#1pw")

	rec = s.do(http.MethodPost, "/api/v1/admin/users/ghost/unlock", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/admin/users/alice/role", adminToken, map[string]string{"role": "SUPERVISOR"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPut, "/api/v1/admin/users/alice/role", adminToken, map[string]string{"role": "JANITOR"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/admin/users/alice/active", adminToken, map[string]bool{"active": false})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "Correct#1pw"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", errorCode(t, rec))
	rec = s.do(http.MethodPut, "/api/v1/admin/users/alice/active", adminToken, map[string]bool{"active": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/admin/users/alice/password", adminToken, map[string]string{"newPassword": "Reset#Pass42"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	s.login("alice", "Reset#Pass42")

	rec = s.do(http.MethodGet, "/api/v1/admin/audit?actor=alice&kind=ACCOUNT_FORCE_UNLOCKED&limit=5", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trail struct {
		Events []model.AuditEvent `json:"events"`
		Count  int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	require.Equal(t, 1, trail.Count)
	assert.Equal(t, "Account unlocked by root_admin", trail.Events[0].Detail)

	rec = s.do(http.MethodGet, "/api/v1/admin/audit?limit=abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminTokenFollowsStoredAccount(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.NoError(t, s.svc.Register(ctx, service.RegisterRequest{Username: "root_admin", Password: "Admin#Pass1", Role: model.RoleAdmin}))
	require.NoError(t, s.svc.Register(ctx, service.RegisterRequest{Username: "night_admin", Password: "Night#Pass1", Role: model.RoleAdmin}))
	token := s.login("night_admin", "Night#Pass1")

	rec := s.do(http.MethodGet, "/api/v1/admin/audit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.svc.SetRole(ctx, "night_admin", model.RoleOperator, "root_admin"))
	rec = s.do(http.MethodGet, "/api/v1/admin/audit", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))

	require.NoError(t, s.svc.SetRole(ctx, "night_admin", model.RoleAdmin, "root_admin"))
	require.NoError(t, s.svc.SetActive(ctx, "night_admin", false, "root_admin"))
	rec = s.do(http.MethodPost, "/api/v1/admin/users/root_admin/unlock", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", errorCode(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ghost", "password": "whatever"})

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `plantdesk_auth_attempts_total{outcome="invalid_credentials"} 1`)
	assert.Contains(t, body, `path="POST /api/v1/auth/login"`)
	assert.Contains(t, body, "plantdesk_pool_max_connections 4")
}
