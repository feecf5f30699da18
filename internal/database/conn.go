package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
)

// Conn is a pooled handle around a single database/sql connection. It marks
// itself closed once the driver reports the connection as unusable, so the
// pool drops it instead of handing it out again.
type Conn struct {
	raw    *sql.Conn
	broken atomic.Bool
	closed atomic.Bool
}

// NewConn wraps raw
func NewConn(raw *sql.Conn) *Conn {
	return &Conn{raw: raw}
}

// Closed reports whether the connection can no longer be used
func (c *Conn) Closed() bool {
	return c.broken.Load() || c.closed.Load()
}

// Close returns the underlying connection to database/sql for disposal
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.raw.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// ExecContext executes a query without returning any rows
func (c *Conn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := c.raw.ExecContext(ctx, query, args...)
	c.observe(err)
	return res, err
}

// QueryContext executes a query that returns rows
func (c *Conn) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.raw.QueryContext(ctx, query, args...)
	c.observe(err)
	return rows, err
}

// QueryRowContext executes a query that returns at most one row
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	row := c.raw.QueryRowContext(ctx, query, args...)
	c.observe(row.Err())
	return row
}

// BeginTx starts a transaction on this connection
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := c.raw.BeginTx(ctx, opts)
	c.observe(err)
	return tx, err
}

func (c *Conn) observe(err error) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		c.broken.Store(true)
	}
}
