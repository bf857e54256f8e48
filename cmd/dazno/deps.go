// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/auth/postgres"
	"github.com/dazno/dazno-umbrel/internal/observability"
	"github.com/dazno/dazno-umbrel/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the user and session store.
	// Default: openPostgresStore
	StoreFactory func(ctx context.Context, url string) (Store, error)

	// Migrate applies pending schema migrations.
	// Default: migrateUp
	Migrate func(url string) error

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the dashboard listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// Hasher hashes operator passwords.
	// Default: auth.NewArgon2idHasher
	Hasher auth.PasswordHasher
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.StoreFactory == nil {
		d.StoreFactory = openPostgresStore
	}
	if d.Migrate == nil {
		d.Migrate = migrateUp
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewArgon2idHasher()
	}
	return d
}

// Store is the persistence the dashboard needs.
type Store interface {
	Users() auth.UserRepository
	Sessions() auth.SessionRepository
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

type postgresStore struct {
	pool     *pgxpool.Pool
	users    *postgres.UserRepository
	sessions *postgres.SessionRepository
}

func openPostgresStore(ctx context.Context, url string) (Store, error) {
	opts := store.DefaultConnectOptions
	opts.Logger = slog.Default().With("component", "store")
	pool, err := store.Connect(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return &postgresStore{
		pool:     pool,
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
	}, nil
}

func (s *postgresStore) Users() auth.UserRepository       { return s.users }
func (s *postgresStore) Sessions() auth.SessionRepository { return s.sessions }
func (s *postgresStore) Ping(ctx context.Context) error   { return s.pool.Ping(ctx) }
func (s *postgresStore) Close()                           { s.pool.Close() }

func migrateUp(url string) error {
	m, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()
	return m.Up()
}
