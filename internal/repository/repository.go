// Package repository provides the PostgreSQL implementation of the user and
// place stores.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spotshare/spotshare/internal/store"
)

// DefaultTxTimeout bounds a transaction when no Option overrides it.
const DefaultTxTimeout = 5 * time.Second

// Pool sizing. Every request that writes holds one connection for the
// length of its transaction.
const (
	maxConns          = 10
	minConns          = 2
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
)

// Repository is a store.Store over a pgx pool.
type Repository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

var _ store.Store = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithTxTimeout bounds every transaction started by RunInTx.
func WithTxTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.txTimeout = d
		}
	}
}

// querier is the subset of *pgxpool.Pool and pgx.Tx the stores use, so one
// query method serves both pooled reads and transactional writes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New opens a pool for databaseURL and verifies it with a ping.
func New(ctx context.Context, databaseURL string, opts ...Option) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{pool: pool, txTimeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Close releases every pooled connection.
func (r *Repository) Close() { r.pool.Close() }

// Pool exposes the pool to migrations and tests.
func (r *Repository) Pool() *pgxpool.Pool { return r.pool }
