package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/pool"
)

// Postgres wraps the SQL database handle the connection pool draws from
type Postgres struct {
	*sql.DB
}

// NewPostgres opens a PostgreSQL handle sized for the application pool
func NewPostgres(cfg config.DatabaseConfig, poolCfg config.PoolConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The application pool owns reuse; database/sql only has to keep up with it
	db.SetMaxOpenConns(poolCfg.MaxConnections)
	db.SetMaxIdleConns(poolCfg.MaxConnections)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{DB: db}, nil
}

// Wrap adapts an already opened handle, e.g. one created by sqlmock
func Wrap(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

// Factory returns a pool factory that pins one database/sql connection per
// pooled handle
func (p *Postgres) Factory() pool.Factory {
	return func(ctx context.Context) (pool.Conn, error) {
		raw, err := p.DB.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open connection: %w", err)
		}
		return NewConn(raw), nil
	}
}

// HealthCheck verifies the database is reachable
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.PingContext(ctx)
}

// NewPool opens the application connection pool over this handle
func (p *Postgres) NewPool(ctx context.Context, cfg config.PoolConfig, opts ...pool.Option) (*pool.Pool, error) {
	return pool.New(ctx, p.Factory(), pool.Config{
		MinConnections:    cfg.MinConnections,
		MaxConnections:    cfg.MaxConnections,
		AcquireRetries:    cfg.AcquireRetries,
		AcquireRetryDelay: cfg.AcquireRetryDelay,
	}, opts...)
}
