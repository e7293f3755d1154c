// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package store opens the PostgreSQL pool and manages the accounts schema.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool connection defaults.
const (
	DefaultMaxConns       = 10
	DefaultConnectRetries = 5
	defaultConnectBackoff = 200 * time.Millisecond
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// PoolOption configures NewPool.
type PoolOption func(*poolSettings)

type poolSettings struct {
	maxConns int32
	retries  uint64
	backoff  time.Duration
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) PoolOption {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithConnectRetry sets how many times the initial ping is retried.
func WithConnectRetry(retries uint64, backoff time.Duration) PoolOption {
	return func(s *poolSettings) {
		s.retries = retries
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// NewPool opens a pgx pool and waits until the database answers a ping.
func NewPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	settings := poolSettings{
		maxConns: DefaultMaxConns,
		retries:  DefaultConnectRetries,
		backoff:  defaultConnectBackoff,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	cfg.MaxConns = settings.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, settings.retries, settings.backoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForPing pings with exponential backoff until the database responds.
func waitForPing(ctx context.Context, p pinger, retries uint64, backoff time.Duration) error {
	b := retry.WithMaxRetries(retries, retry.NewExponential(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("retries", retries).
			Wrap(err)
	}
	return nil
}

// ReadinessCheck returns a probe that reports whether the database answers
// within timeout.
func ReadinessCheck(p pinger, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return oops.Code("DB_UNAVAILABLE").Wrap(err)
		}
		return nil
	}
}
