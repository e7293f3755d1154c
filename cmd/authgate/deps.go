// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the account store.
	// Default: openPostgresStore when a database URL is set, memory otherwise
	StoreOpener func(ctx context.Context, databaseURL string) (*openedStore, error)

	// MigratorFactory creates the migrator run before serving.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

// AdminDeps contains injectable dependencies for the account commands.
type AdminDeps struct {
	// StoreOpener opens the account store.
	// Default: openPostgresStore
	StoreOpener func(ctx context.Context, databaseURL string) (*openedStore, error)

	// Hasher hashes new passwords.
	// Default: auth.NewArgon2idHasher
	Hasher auth.PasswordHasher
}

// MigratorDeps contains injectable dependencies for the migrate commands.
type MigratorDeps struct {
	// MigratorFactory creates a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Migrator is the subset of *store.Migrator the commands drive.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// ObservabilityServer is the subset of *observability.Server serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// openedStore is an account repository plus its lifecycle hooks.
type openedStore struct {
	repo  auth.AccountRepository
	ready observability.ReadinessChecker
	close func()
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openPostgresStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newStoreMigrator
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.LogWriter == nil {
		out.LogWriter = os.Stderr
	}
	return &out
}

func (d *AdminDeps) withDefaults() *AdminDeps {
	out := AdminDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openPostgresStore
	}
	if out.Hasher == nil {
		out.Hasher = auth.NewArgon2idHasher()
	}
	return &out
}

func (d *MigratorDeps) withDefaults() *MigratorDeps {
	out := MigratorDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newStoreMigrator
	}
	return &out
}

func newStoreMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// openPostgresStore connects the pool and wraps it in the account repository.
func openPostgresStore(ctx context.Context, databaseURL string) (*openedStore, error) {
	pool, err := store.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &openedStore{
		repo:  postgres.NewAccountRepository(pool),
		ready: store.ReadinessCheck(pool, readinessTimeout),
		close: pool.Close,
	}, nil
}
