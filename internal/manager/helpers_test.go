// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/internal/access/accesstest"
	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/syncer"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	gmUser  = "gm"
	bobUser = "bob"
)

type published struct {
	kind    syncer.Kind
	payload any
}

// recordingPublisher keeps every broadcast.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, kind syncer.Kind, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{kind: kind, payload: payload})
	return p.err
}

func (p *recordingPublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.sent, "nothing was published")
	return p.sent[len(p.sent)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// scriptedConfirmer answers every prompt with answer and records it.
type scriptedConfirmer struct {
	answer   bool
	err      error
	titles   []string
	messages []string
}

func (c *scriptedConfirmer) Confirm(_ context.Context, title, message string) (bool, error) {
	c.titles = append(c.titles, title)
	c.messages = append(c.messages, message)
	return c.answer, c.err
}

type fixture struct {
	m       *Manager
	store   *store.MemoryStore
	dir     *accesstest.Directory
	clock   *core.ManualClock
	notices *notify.Recorder
	pub     *recordingPublisher
	confirm *scriptedConfirmer
	metrics *observability.Metrics
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		dir:     accesstest.NewDirectory(gmUser, gmUser),
		clock:   core.NewManualClock(testNow),
		notices: &notify.Recorder{},
		pub:     &recordingPublisher{},
		confirm: &scriptedConfirmer{answer: true},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	cfg := Config{
		Store:         f.store,
		Directory:     f.dir,
		Clock:         f.clock,
		Limits:        quest.DefaultLimits(),
		AutoSave:      true,
		Notifications: true,
		AppVersion:    "1.2.3",
		Confirmer:     f.confirm,
		Notifier:      f.notices,
		Publisher:     f.pub,
		Metrics:       f.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Load(context.Background()))
	f.m = m
	return f
}

func (f *fixture) create(t *testing.T, title, parentID string) *quest.Quest {
	t.Helper()
	q, err := f.m.CreateQuest(context.Background(), quest.Record{Title: title, ParentID: parentID}, gmUser)
	require.NoError(t, err)
	return q
}

func (f *fixture) lastNotice(t *testing.T) notify.Notice {
	t.Helper()
	n, ok := f.notices.Last()
	require.True(t, ok, "no notice sent")
	return n
}
