// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/syncer"
	"github.com/holomush/questkeeper/pkg/errutil"
)

// pollInterval is how often serve checks non-PostgreSQL stores for writes
// made by other processes.
const pollInterval = 2 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived client that stays in sync with other clients",
		Long: `Run a client that keeps its quest state in sync with every other
client: remote changes are applied as they arrive, a player asks a game
master for the current state on start, and game masters answer such
requests. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, a *app, _ []string) error {
			return runServe(cmd.Context(), cmd, a, nil)
		}),
	}
}

// runServe runs until ctx is done, a signal arrives or the observability
// server fails. A nil stop channel means OS signals.
func runServe(ctx context.Context, cmd *cobra.Command, a *app, stop <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channel, listener, cleanup, err := a.deps.ChannelFactory(ctx, a)
	if err != nil {
		return oops.In("cli").Public("Failed to start synchronization").Wrap(err)
	}
	defer cleanup()

	s := syncer.New(syncer.Config{
		Channel:   channel,
		State:     a.manager,
		Directory: a.dir,
		Clock:     a.deps.Clock,
		Metrics:   a.metrics,
		OnChange: func(kind syncer.Kind) {
			a.logger.Info("state refreshed", "kind", kind, "quests", a.manager.Len())
		},
	})
	s.Start(ctx)
	defer func() {
		cancel()
		s.Stop()
	}()
	a.manager.SetPublisher(s)

	if listener != nil {
		if err := s.WatchDocuments(ctx, listener); err != nil {
			return oops.In("cli").Public("Failed to watch quest storage").Wrap(err)
		}
	}
	if err := s.RequestSync(ctx); err != nil {
		errutil.LogErrorContext(ctx, a.logger, "resync request failed", err)
	}

	var ready atomic.Bool
	var obs ObservabilityServer
	if a.cfg.MetricsAddr != "" {
		obs = a.deps.ObservabilityServerFactory(a.cfg.MetricsAddr, a.registry,
			observability.WithReadiness(ready.Load),
			observability.WithStatus(func() any { return a.status() }),
			observability.WithLogger(a.logger))
		errCh, err := obs.Start()
		if err != nil {
			return oops.In("cli").Public("Failed to start the metrics server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
	}

	var flush <-chan time.Time
	if !a.cfg.AutoSave && a.cfg.SaveInterval > 0 {
		ticker := time.NewTicker(a.cfg.SaveInterval)
		defer ticker.Stop()
		flush = ticker.C
	}

	if stop == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		stop = sigChan
	}

	ready.Store(true)
	cmd.Printf("Serving as %s (%d quests)\n", a.user(), a.manager.Len())
	a.logger.Info("serve ready", "user", a.user(), "gm", a.dir.IsGM(a.user()), "backend", a.cfg.Storage.Backend)

	for running := true; running; {
		select {
		case sig := <-stop:
			a.logger.Info("received shutdown signal", "signal", sig)
			running = false
		case <-ctx.Done():
			a.logger.Info("context cancelled, shutting down")
			running = false
		case <-flush:
			if a.manager.Dirty() {
				if err := a.manager.Save(ctx); err != nil {
					errutil.LogErrorContext(ctx, a.logger, "periodic save failed", err)
				}
			}
		}
	}

	ready.Store(false)
	if obs != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
	return nil
}

// serveStatus is the snapshot served on /status.
type serveStatus struct {
	User     string           `json:"user"`
	GM       bool             `json:"gm"`
	Backend  string           `json:"backend"`
	Quests   int              `json:"quests"`
	Dirty    bool             `json:"dirty"`
	Versions map[string]int64 `json:"versions"`
}

func (a *app) status() serveStatus {
	return serveStatus{
		User:    a.user(),
		GM:      a.dir.IsGM(a.user()),
		Backend: a.cfg.Storage.Backend,
		Quests:  a.manager.Len(),
		Dirty:   a.manager.Dirty(),
		Versions: map[string]int64{
			store.KeyQuestTree:   a.manager.DocumentVersion(store.KeyQuestTree),
			store.KeyPermissions: a.manager.DocumentVersion(store.KeyPermissions),
		},
	}
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	}
}

// newChannel picks the sync transport for the configured store. PostgreSQL
// carries envelopes over NOTIFY and reports document writes from a
// trigger. Other stores sync only clients in this process and are polled
// for writes made elsewhere.
func newChannel(ctx context.Context, a *app) (syncer.Channel, syncer.Listener, func(), error) {
	pg, ok := a.store.(*store.PostgresStore)
	if !ok {
		hub := syncer.NewHub()
		hub.OnDrop(a.metrics.Dropped)
		poll := syncer.NewPollListener(a.store, pollInterval, store.KeyQuestTree, store.KeyPermissions)
		return hub, poll, hub.Close, nil
	}

	url := a.cfg.Storage.DatabaseURL
	ch := syncer.NewPGChannel(pg.Pool(), syncer.NewPGListener(url, syncer.EnvelopeChannel))
	ch.Hub().OnDrop(a.metrics.Dropped)
	if err := ch.Start(ctx); err != nil {
		return nil, nil, nil, err
	}
	return ch, syncer.NewPGListener(url, syncer.DocumentChannel), ch.Wait, nil
}
