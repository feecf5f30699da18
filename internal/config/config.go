package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For header is
	// believed. Requests from anywhere else are keyed by their remote address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects it
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// PoolConfig holds the application connection pool limits
type PoolConfig struct {
	MinConnections    int           `mapstructure:"min_connections"`
	MaxConnections    int           `mapstructure:"max_connections"`
	AcquireRetries    int           `mapstructure:"acquire_retries"`
	AcquireRetryDelay time.Duration `mapstructure:"acquire_retry_delay"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Lockout      LockoutConfig      `mapstructure:"lockout"`
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// LockoutConfig holds brute-force protection settings
type LockoutConfig struct {
	MaxLoginAttempts int `mapstructure:"max_login_attempts"`
	DurationMinutes  int `mapstructure:"duration_minutes"`
}

// Duration returns the lockout window
func (c LockoutConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// PasswordConfig holds password hashing configuration
type PasswordConfig struct {
	MinLength int `mapstructure:"min_length"`
	// Scheme selects the hash written for new passwords: "sha256-static" or "argon2id".
	// Verification accepts both regardless of this setting.
	Scheme string `mapstructure:"scheme"`
	// Salt is the application-wide salt used by the sha256-static scheme.
	// Changing it makes every existing sha256-static hash unverifiable.
	Salt string `mapstructure:"salt"`
	// LegacyPlaintextFallback enables the pre-migration plaintext check for
	// accounts with an empty password hash.
	LegacyPlaintextFallback bool   `mapstructure:"legacy_plaintext_fallback"`
	Argon2Memory            uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations        uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism       uint8  `mapstructure:"argon2_parallelism"`
}

// TokenConfig holds session token configuration
type TokenConfig struct {
	Secret   string        `mapstructure:"secret"`
	TTL      time.Duration `mapstructure:"ttl"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	LoginLimit  int           `mapstructure:"login_limit"`
	LoginWindow time.Duration `mapstructure:"login_window"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration using the given viper instance. Tests use it
// to inject values without touching the process environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/plantdesk")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PLANTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindLegacyEnv maps the bare environment names the desktop deployment
// scripts already export onto their config keys.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"security.lockout.max_login_attempts": {"PLANTDESK_SECURITY_LOCKOUT_MAX_LOGIN_ATTEMPTS", "MAX_LOGIN_ATTEMPTS"},
		"security.lockout.duration_minutes":   {"PLANTDESK_SECURITY_LOCKOUT_DURATION_MINUTES", "LOCKOUT_DURATION_MINUTES"},
		"pool.min_connections":                {"PLANTDESK_POOL_MIN_CONNECTIONS", "MIN_CONNECTIONS"},
		"pool.max_connections":                {"PLANTDESK_POOL_MAX_CONNECTIONS", "MAX_CONNECTIONS"},
		"pool.acquire_retries":                {"PLANTDESK_POOL_ACQUIRE_RETRIES", "ACQUIRE_RETRY_COUNT"},
		"pool.acquire_retry_delay":            {"PLANTDESK_POOL_ACQUIRE_RETRY_DELAY", "ACQUIRE_RETRY_DELAY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects configurations the pool or the lockout logic cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.MaxConnections < 1 {
		errs = append(errs, errors.New("pool.max_connections must be at least 1"))
	}
	if c.Pool.MinConnections < 0 || c.Pool.MinConnections > c.Pool.MaxConnections {
		errs = append(errs, errors.New("pool.min_connections must be between 0 and pool.max_connections"))
	}
	if c.Pool.AcquireRetries < 0 {
		errs = append(errs, errors.New("pool.acquire_retries must not be negative"))
	}
	if c.Pool.AcquireRetryDelay < 0 {
		errs = append(errs, errors.New("pool.acquire_retry_delay must not be negative"))
	}
	if c.Security.Lockout.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("security.lockout.max_login_attempts must be at least 1"))
	}
	if c.Security.Lockout.DurationMinutes < 1 {
		errs = append(errs, errors.New("security.lockout.duration_minutes must be at least 1"))
	}
	switch c.Security.Password.Scheme {
	case "sha256-static", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("unknown security.password.scheme %q", c.Security.Password.Scheme))
	}
	if c.Security.Password.MinLength < 8 {
		errs = append(errs, errors.New("security.password.min_length must be at least 8"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := ParseNetwork(proxy); err != nil {
			errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
		}
	}
	if c.Security.Password.Scheme == "sha256-static" && c.Security.Password.Salt == "" {
		errs = append(errs, errors.New("security.password.salt is required for the sha256-static scheme"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ParseNetwork accepts a CIDR or a single IP, which becomes a host network
func ParseNetwork(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, network, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q", s)
		}
		return network, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.trusted_proxies", []string{})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "plantdesk")
	v.SetDefault("database.user", "plantdesk")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	// Pool defaults
	v.SetDefault("pool.min_connections", 3)
	v.SetDefault("pool.max_connections", 10)
	v.SetDefault("pool.acquire_retries", 10)
	v.SetDefault("pool.acquire_retry_delay", "100ms")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.lockout.max_login_attempts", 5)
	v.SetDefault("security.lockout.duration_minutes", 30)

	v.SetDefault("security.password.min_length", 8)
	v.SetDefault("security.password.scheme", "sha256-static")
	v.SetDefault("security.password.salt", "plantdesk-static-salt")
	v.SetDefault("security.password.legacy_plaintext_fallback", false)
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)

	v.SetDefault("security.tokens.secret", "")
	v.SetDefault("security.tokens.ttl", "8h")
	v.SetDefault("security.tokens.issuer", "plantdesk")
	v.SetDefault("security.tokens.audience", "plantdesk-desktop")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.login_limit", 20)
	v.SetDefault("security.rate_limiting.login_window", "15m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "plantdesk")
}
