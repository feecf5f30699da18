// Package pool bounds and reuses the application's database connections.
//
// The pool keeps an unbounded FIFO of idle connections and a separate atomic
// count of live connections (opened and not yet destroyed). A connection is
// owned either by the idle queue or by exactly one caller between Acquire and
// Release.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Pool errors
var (
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool is closed")
	ErrInvalidConfig = errors.New("invalid pool configuration")
)

// Conn is a pooled connection handle
type Conn interface {
	// Closed reports whether the handle can no longer be used
	Closed() bool
	Close() error
}

// Factory opens a new connection
type Factory func(ctx context.Context) (Conn, error)

// Acquire outcomes reported to an Observer
const (
	OutcomeIdle      = "idle"
	OutcomeNew       = "new"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"
)

// Observer receives pool events, typically to export metrics
type Observer interface {
	AcquireObserved(outcome string, wait time.Duration)
	ConnectionDiscarded()
}

type nopObserver struct{}

func (nopObserver) AcquireObserved(string, time.Duration) {}
func (nopObserver) ConnectionDiscarded()                  {}

// Config holds pool limits
type Config struct {
	MinConnections    int
	MaxConnections    int
	AcquireRetries    int
	AcquireRetryDelay time.Duration
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MinConnections:    3,
		MaxConnections:    10,
		AcquireRetries:    10,
		AcquireRetryDelay: 100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxConnections < 1:
		return fmt.Errorf("%w: max connections must be at least 1", ErrInvalidConfig)
	case c.MinConnections < 0 || c.MinConnections > c.MaxConnections:
		return fmt.Errorf("%w: min connections must be between 0 and %d", ErrInvalidConfig, c.MaxConnections)
	case c.AcquireRetries < 0:
		return fmt.Errorf("%w: acquire retries must not be negative", ErrInvalidConfig)
	case c.AcquireRetryDelay < 0:
		return fmt.Errorf("%w: acquire retry delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Pool
type Option func(*Pool)

// WithObserver reports acquire outcomes to o
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Live  int `json:"live"`
	Idle  int `json:"idle"`
	InUse int `json:"inUse"`
	Max   int `json:"max"`
}

// Pool is a bounded connection pool. It is safe for concurrent use.
type Pool struct {
	factory  Factory
	cfg      Config
	observer Observer

	mu     sync.Mutex
	idle   []Conn
	closed bool

	live  atomic.Int64
	inUse atomic.Int64
}

// New creates a pool and opens cfg.MinConnections connections. If any of them
// cannot be opened the ones already opened are closed and an error is returned.
func New(ctx context.Context, factory Factory, cfg Config, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: factory is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		factory:  factory,
		cfg:      cfg,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < cfg.MinConnections; i++ {
		conn, err := factory(ctx)
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("failed to open minimum connections (%d of %d): %w", i, cfg.MinConnections, err)
		}
		p.live.Add(1)
		p.idle = append(p.idle, conn)
	}

	return p, nil
}

// Acquire returns a connection. When the pool is exhausted it polls the idle
// queue every AcquireRetryDelay, at most AcquireRetries times, and then fails
// with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	start := time.Now()
	retries := 0

	for {
		conn, ok, err := p.popIdle()
		if err != nil {
			return nil, err
		}
		if ok {
			if conn.Closed() {
				p.discard(conn)
				continue
			}
			p.inUse.Add(1)
			p.observer.AcquireObserved(OutcomeIdle, time.Since(start))
			return conn, nil
		}

		if p.reserve() {
			conn, err := p.factory(ctx)
			if err != nil {
				p.live.Add(-1)
				p.observer.AcquireObserved(OutcomeError, time.Since(start))
				return nil, fmt.Errorf("failed to open connection: %w", err)
			}
			p.inUse.Add(1)
			p.observer.AcquireObserved(OutcomeNew, time.Since(start))
			return conn, nil
		}

		if retries >= p.cfg.AcquireRetries {
			p.observer.AcquireObserved(OutcomeExhausted, time.Since(start))
			return nil, ErrPoolExhausted
		}
		retries++

		timer := time.NewTimer(p.cfg.AcquireRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.observer.AcquireObserved(OutcomeCanceled, time.Since(start))
			return nil, fmt.Errorf("acquire canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Release hands a connection back. Open connections return to the idle
// queue; closed ones are counted out and dropped.
func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}
	p.inUse.Add(-1)

	if conn.Closed() {
		p.live.Add(-1)
		p.observer.ConnectionDiscarded()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		p.live.Add(-1)
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Shutdown closes every idle connection. Connections still checked out are
// left alone; releasing them later closes them. Shutdown is idempotent.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	p.closed = true
	drained := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, conn := range drained {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		p.live.Add(-1)
	}
	return errors.Join(errs...)
}

// HealthCheck acquires and immediately releases a connection
func (p *Pool) HealthCheck(ctx context.Context) bool {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return false
	}
	p.Release(conn)
	return true
}

// Stats returns current counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	return Stats{
		Live:  int(p.live.Load()),
		Idle:  idle,
		InUse: int(p.inUse.Load()),
		Max:   p.cfg.MaxConnections,
	}
}

// popIdle removes the oldest idle connection
func (p *Pool) popIdle() (Conn, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}
	if len(p.idle) == 0 {
		return nil, false, nil
	}
	conn := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	return conn, true, nil
}

// reserve claims a live slot if the pool is below its ceiling
func (p *Pool) reserve() bool {
	max := int64(p.cfg.MaxConnections)
	for {
		cur := p.live.Load()
		if cur >= max {
			return false
		}
		if p.live.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// discard drops a dead connection found in the idle queue
func (p *Pool) discard(conn Conn) {
	_ = conn.Close()
	p.live.Add(-1)
	p.observer.ConnectionDiscarded()
}
