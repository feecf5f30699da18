// Package plantdesk is a Go client for the plantdesk authentication API. The
// desktop shell uses it to sign operators in, and other plant services use
// its middleware to trust plantdesk session tokens.
package plantdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the configuration for the plantdesk client.
type Config struct {
	// BaseURL is the root URL of the plantdesk server.
	// Examples: "http://plantdesk.local:8080" or "http://plantdesk.local:8080/api/v1"
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// CacheTTL controls how long validated tokens are cached in memory.
	// Set to a negative value to disable caching.
	// Default: 1 minute
	CacheTTL time.Duration

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client calls the plantdesk API. It is safe for concurrent use.
type Client struct {
	cfg   Config
	cache *tokenCache
	now   func() time.Time
}

// NewClient creates a new plantdesk client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:   cfg,
		cache: newTokenCache(),
		now:   time.Now,
	}
}

// Login authenticates with username and password.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new USER account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/register", "", req, nil)
}

// ChangePassword changes the password of the account that owns token.
func (c *Client) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/auth/password/change", token, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}, nil)
}

// ValidateToken resolves a session token to its user by calling the server.
// Results are cached according to CacheTTL.
func (c *Client) ValidateToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	if c.cfg.CacheTTL > 0 {
		if user, ok := c.cache.get(token, c.now()); ok {
			return user, nil
		}
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", token, nil, &user); err != nil {
		if apiErr, ok := IsAPIError(err); ok {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				return nil, ErrTokenInvalid
			case http.StatusForbidden:
				return nil, ErrTokenForbidden
			}
		}
		return nil, err
	}

	if c.cfg.CacheTTL > 0 {
		now := c.now()
		c.cache.set(token, &user, now, now.Add(c.cfg.CacheTTL))
	}
	return &user, nil
}

// InvalidateToken removes a token from the local cache. Call this on sign
// out so a stale token is not served from cache.
func (c *Client) InvalidateToken(token string) {
	c.cache.delete(token)
}

// UnlockAccount clears the lockout on username. Requires an ADMIN token.
func (c *Client) UnlockAccount(ctx context.Context, token, username string) error {
	return c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(username)+"/unlock", token, nil, nil)
}

// SetRole changes the role of username. Requires an ADMIN token.
func (c *Client) SetRole(ctx context.Context, token, username, role string) error {
	return c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(username)+"/role", token,
		map[string]string{"role": role}, nil)
}

// SetActive activates or deactivates username. Requires an ADMIN token.
func (c *Client) SetActive(ctx context.Context, token, username string, active bool) error {
	return c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(username)+"/active", token,
		map[string]bool{"active": active}, nil)
}

// ResetPassword sets a new password for username. Requires an ADMIN token.
func (c *Client) ResetPassword(ctx context.Context, token, username, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(username)+"/password", token,
		map[string]string{"newPassword": newPassword}, nil)
}

// LockStatus reports the lockout state of username. Requires an ADMIN token.
func (c *Client) LockStatus(ctx context.Context, token, username string) (*LockState, error) {
	var state LockState
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(username)+"/lock", token, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// AuditTrail lists audit events, most recent first. Requires an ADMIN token.
func (c *Client) AuditTrail(ctx context.Context, token string, filter AuditFilter) ([]AuditEvent, error) {
	q := url.Values{}
	if filter.Actor != "" {
		q.Set("actor", filter.Actor)
	}
	if filter.Kind != "" {
		q.Set("kind", filter.Kind)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/admin/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Events []AuditEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// do sends a request to the plantdesk API and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path, token string, payload, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("plantdesk: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("plantdesk: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("plantdesk: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("plantdesk: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("plantdesk: failed to parse response: %w", err)
	}
	return nil
}

// tokenCache provides in-memory caching for validated tokens. Expired
// entries are pruned on write.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	user      *User
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]cacheEntry)}
}

func (tc *tokenCache) get(token string, now time.Time) (*User, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	entry, ok := tc.entries[token]
	if !ok || !now.Before(entry.expiresAt) {
		return nil, false
	}
	return entry.user, true
}

func (tc *tokenCache) set(token string, user *User, now, expiresAt time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for k, v := range tc.entries {
		if now.After(v.expiresAt) {
			delete(tc.entries, k)
		}
	}
	tc.entries[token] = cacheEntry{user: user, expiresAt: expiresAt}
}

func (tc *tokenCache) delete(token string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.entries, token)
}
