package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no config.yaml is picked up
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, PoolConfig{
		MinConnections:    3,
		MaxConnections:    10,
		AcquireRetries:    10,
		AcquireRetryDelay: 100 * time.Millisecond,
	}, cfg.Pool)
	assert.Equal(t, 5, cfg.Security.Lockout.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Security.Lockout.Duration())
	assert.Equal(t, "sha256-static", cfg.Security.Password.Scheme)
	assert.False(t, cfg.Security.Password.LegacyPlaintextFallback)
	assert.Equal(t, 8*time.Hour, cfg.Security.Tokens.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Security.RateLimiting.LoginWindow)
	assert.False(t, cfg.Redis.Enabled)
}

func TestBareEnvironmentNames(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "7")
	t.Setenv("LOCKOUT_DURATION_MINUTES", "45")
	t.Setenv("MIN_CONNECTIONS", "2")
	t.Setenv("MAX_CONNECTIONS", "20")
	t.Setenv("ACQUIRE_RETRY_COUNT", "4")
	t.Setenv("ACQUIRE_RETRY_DELAY", "250ms")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Security.Lockout.MaxLoginAttempts)
	assert.Equal(t, 45*time.Minute, cfg.Security.Lockout.Duration())
	assert.Equal(t, PoolConfig{
		MinConnections:    2,
		MaxConnections:    20,
		AcquireRetries:    4,
		AcquireRetryDelay: 250 * time.Millisecond,
	}, cfg.Pool)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_CONNECTIONS", "20")
	t.Setenv("PLANTDESK_POOL_MAX_CONNECTIONS", "15")
	t.Setenv("PLANTDESK_SECURITY_PASSWORD_SCHEME", "argon2id")
	t.Setenv("PLANTDESK_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Pool.MaxConnections)
	assert.Equal(t, "argon2id", cfg.Security.Password.Scheme)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t)
	yaml := []byte(`
pool:
  max_connections: 6
  acquire_retry_delay: 50ms
security:
  lockout:
    max_login_attempts: 3
  password:
    legacy_plaintext_fallback: true
  tokens:
    secret: file-secret-that-is-long-enough-for-hs256
redis:
  enabled: true
  port: 6380
server:
  trusted_proxies:
    - 10.20.0.5
    - 172.16.0.0/12
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pool.MaxConnections)
	assert.Equal(t, 50*time.Millisecond, cfg.Pool.AcquireRetryDelay)
	assert.Equal(t, 3, cfg.Security.Lockout.MaxLoginAttempts)
	assert.True(t, cfg.Security.Password.LegacyPlaintextFallback)
	assert.Equal(t, "file-secret-that-is-long-enough-for-hs256", cfg.Security.Tokens.Secret)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr())
	assert.Equal(t, []string{"10.20.0.5", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
}

func TestParseNetwork(t *testing.T) {
	host, err := ParseNetwork("10.20.0.5")
	require.NoError(t, err)
	assert.Equal(t, "10.20.0.5/32", host.String())

	v6, err := ParseNetwork("::1")
	require.NoError(t, err)
	assert.Equal(t, "::1/128", v6.String())

	block, err := ParseNetwork(" 172.16.0.0/12 ")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.0/12", block.String())

	_, err = ParseNetwork("proxy.local")
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"min above max", map[string]string{"MIN_CONNECTIONS": "12"}, "pool.min_connections"},
		{"zero max", map[string]string{"MAX_CONNECTIONS": "0", "MIN_CONNECTIONS": "0"}, "pool.max_connections"},
		{"negative retries", map[string]string{"ACQUIRE_RETRY_COUNT": "-1"}, "pool.acquire_retries"},
		{"zero attempts", map[string]string{"MAX_LOGIN_ATTEMPTS": "0"}, "max_login_attempts"},
		{"zero lockout", map[string]string{"LOCKOUT_DURATION_MINUTES": "0"}, "duration_minutes"},
		{"unknown scheme", map[string]string{"PLANTDESK_SECURITY_PASSWORD_SCHEME": "bcrypt"}, "security.password.scheme"},
		{"short passwords", map[string]string{"PLANTDESK_SECURITY_PASSWORD_MIN_LENGTH": "6"}, "security.password.min_length"},
		{"bad proxy", map[string]string{"PLANTDESK_SERVER_TRUSTED_PROXIES": "10.0.0.0/99"}, "server.trusted_proxies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRetryDelayNeedsUnit(t *testing.T) {
	isolate(t)
	t.Setenv("ACQUIRE_RETRY_DELAY", "100")

	_, err := LoadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config")
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Name: "plant", User: "svc", Password: "pw", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=svc password=pw dbname=plant sslmode=require", db.DSN())
	assert.Equal(t, "postgres://svc:pw@db:5433/plant?sslmode=require", db.URL())
}
