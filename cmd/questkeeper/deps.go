// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/syncer"
)

// Deps contains injectable dependencies for every command.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreOpener opens the configured document store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, cfg store.Config) (store.BlobStore, error)

	// Stdin answers confirmation prompts.
	// Default: the command's input stream
	Stdin io.Reader

	// Clock stamps quests and grants.
	// Default: core.SystemClock
	Clock core.Clock

	// ObservabilityServerFactory creates the metrics/health server for serve.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, gatherer prometheus.Gatherer, opts ...observability.Option) ObservabilityServer

	// ChannelFactory builds the sync channel for serve. It returns the
	// channel, an optional document listener and a cleanup function.
	// Default: newChannel
	ChannelFactory func(ctx context.Context, a *app) (syncer.Channel, syncer.Listener, func(), error)

	// MigratorFactory opens the schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// ObservabilityServer is the subset of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator is the subset of store.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = store.Open
	}
	if out.Clock == nil {
		out.Clock = core.SystemClock{}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, gatherer prometheus.Gatherer, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, gatherer, opts...)
		}
	}
	if out.ChannelFactory == nil {
		out.ChannelFactory = newChannel
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	return &out
}
