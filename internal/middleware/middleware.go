package middleware

import (
	"context"
	"net"
	"time"

	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/model"
)

// WindowCounter counts hits in a fixed window. database.Redis implements it.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// AccountLookup returns the stored identity behind a session token.
// service.AuthService implements it.
type AccountLookup interface {
	CurrentIdentity(ctx context.Context, username string) (*model.Identity, error)
}

// Middleware holds all HTTP middleware
type Middleware struct {
	counter  WindowCounter
	accounts AccountLookup
	trusted  []*net.IPNet
	log      *logger.Logger
	cfg      *config.Config
}

// Option configures a Middleware
type Option func(*Middleware)

// WithAccounts makes Current re-read the account on every request
func WithAccounts(accounts AccountLookup) Option {
	return func(m *Middleware) { m.accounts = accounts }
}

// New creates a new Middleware instance. counter may be nil when Redis is not
// configured; rate limiting is then skipped.
func New(counter WindowCounter, log *logger.Logger, cfg *config.Config, opts ...Option) *Middleware {
	m := &Middleware{
		counter: counter,
		log:     log,
		cfg:     cfg,
	}
	for _, proxy := range cfg.Server.TrustedProxies {
		network, err := config.ParseNetwork(proxy)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring trusted proxy")
			continue
		}
		m.trusted = append(m.trusted, network)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
