// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tune the initial connection attempts.
type ConnectOptions struct {
	// MaxRetries bounds reconnect attempts after the first failure.
	MaxRetries uint64
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration
	Logger   *slog.Logger
}

// DefaultConnectOptions suit a database container that starts alongside the
// dashboard.
var DefaultConnectOptions = ConnectOptions{
	MaxRetries: 6,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff.
// An unparseable URL fails immediately.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_INVALID_URL").Wrap(err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultConnectOptions.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultConnectOptions.MaxDelay
	}

	backoff := retry.WithMaxRetries(opts.MaxRetries,
		retry.WithCappedDuration(opts.MaxDelay, retry.NewExponential(opts.BaseDelay)))

	var pool *pgxpool.Pool
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, cfg.Copy())
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable yet",
				"attempt", attempt, "host", cfg.ConnConfig.Host, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
