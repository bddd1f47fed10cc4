// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/config"
	"github.com/holomush/questkeeper/internal/inventory"
	"github.com/holomush/questkeeper/internal/logging"
	"github.com/holomush/questkeeper/internal/manager"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/pkg/errutil"
)

// app is everything one command invocation works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.BlobStore
	dir      *access.StaticDirectory
	catalog  *inventory.Catalog
	registry *prometheus.Registry
	metrics  *observability.Metrics
	manager  *manager.Manager
	deps     *Deps
}

// user is the acting user id.
func (a *app) user() string {
	return a.cfg.User
}

// openApp loads configuration and builds the manager over the configured
// store. The caller must Close the app.
func openApp(cmd *cobra.Command, deps *Deps) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.Public(err.Error()).Wrapf(err, "invalid configuration")
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "questkeeper",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		User:    cfg.User,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	dir, err := access.NewStaticDirectory(cfg.User, cfg.GMPatterns...)
	if err != nil {
		return nil, err
	}

	var catalog *inventory.Catalog
	if cfg.CatalogPath == "" {
		catalog = inventory.NewCatalog(deps.Clock)
	} else if catalog, err = inventory.Load(cfg.CatalogPath, deps.Clock); err != nil {
		return nil, err
	}

	st, err := deps.StoreOpener(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, oops.Public("Failed to open quest storage").Wrap(err)
	}

	registry := observability.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		dir:      dir,
		catalog:  catalog,
		registry: registry,
		metrics:  observability.NewMetrics(registry),
		deps:     deps,
	}

	stdin := deps.Stdin
	if stdin == nil {
		stdin = cmd.InOrStdin()
	}
	m, err := manager.New(manager.Config{
		Store:         st,
		Directory:     dir,
		Clock:         deps.Clock,
		Limits:        cfg.QuestLimits(),
		OrphanPolicy:  cfg.Orphans(),
		AutoSave:      cfg.AutoSave,
		Notifications: cfg.Notifications,
		AppVersion:    version,
		Confirmer:     newPromptConfirmer(stdin, cmd.OutOrStdout(), cfg.AssumeYes),
		Notifier:      successNotices{next: newNoticeWriter(cmd.OutOrStdout())},
		Inventory:     catalog,
		Metrics:       a.metrics,
		Logger:        logger,
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}
	if err := m.Load(ctx); err != nil {
		a.closeStore()
		return nil, err
	}
	a.manager = m
	return a, nil
}

// Close flushes unsaved changes and releases the store.
func (a *app) Close(ctx context.Context) error {
	var err error
	if a.manager != nil && a.manager.Dirty() {
		err = a.manager.Save(ctx)
	}
	a.closeStore()
	return err
}

func (a *app) closeStore() {
	if err := a.store.Close(); err != nil {
		errutil.LogError(a.logger, "closing store failed", err)
	}
}

// newNoticeWriter colors notices only on an interactive stdout.
func newNoticeWriter(out io.Writer) *notify.Writer {
	tty := out == io.Writer(os.Stdout) && !color.NoColor
	return notify.NewWriter(out, notify.WithColor(tty))
}

// successNotices forwards every notice except failures, which the command
// returns as its error instead.
type successNotices struct {
	next notify.Notifier
}

func (s successNotices) Notify(ctx context.Context, n notify.Notice) {
	if n.Kind == notify.KindFailure {
		return
	}
	s.next.Notify(ctx, n)
}

// promptConfirmer asks yes/no questions on a terminal.
type promptConfirmer struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

func newPromptConfirmer(in io.Reader, out io.Writer, assumeYes bool) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

// Confirm implements manager.Confirmer. Anything but y or yes declines,
// including end of input.
func (p *promptConfirmer) Confirm(_ context.Context, title, message string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if _, err := fmt.Fprintf(p.out, "%s: %s [y/N] ", title, message); err != nil {
		return false, oops.In("cli").Wrap(err)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, oops.In("cli").Wrapf(err, "read answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
