// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/pkg/errutil"
)

// State is the local replica the Syncer keeps current.
type State interface {
	// Reload discards local state and reads both documents from the store.
	Reload(ctx context.Context) error
	// Install replaces local state without touching the store.
	Install(ctx context.Context, tree quest.Snapshot, perms access.PolicyRecord) error
	// Export returns the current state for answering a resync.
	Export(ctx context.Context) (quest.Snapshot, access.PolicyRecord)
	// DocumentVersion returns the store version last loaded for key.
	DocumentVersion(key string) int64
}

// Config configures a Syncer.
type Config struct {
	Channel   Channel
	State     State
	Directory access.Directory
	Clock     core.Clock
	Metrics   *observability.Metrics
	// OnChange runs after local state was refreshed by a remote change.
	OnChange func(kind Kind)
}

// Syncer applies remote changes to local state and publishes local ones.
//
// Every mutation envelope triggers a full reload from the shared store, so
// envelopes only need to say that something changed.
type Syncer struct {
	cfg    Config
	mu     sync.Mutex
	cancel func()
	wg     sync.WaitGroup
}

// New creates a Syncer. Call Start to begin receiving.
func New(cfg Config) *Syncer {
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	return &Syncer{cfg: cfg}
}

// Self returns the identity this Syncer publishes as.
func (s *Syncer) Self() string {
	return s.cfg.Directory.CurrentUser()
}

// Start subscribes to the channel. ctx bounds the work done per envelope.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.cancel = s.cfg.Channel.Subscribe(func(env Envelope) {
		s.handle(ctx, env)
	})
}

// Stop unsubscribes and waits for in-flight handlers. Cancel the context
// given to WatchDocuments first; Stop also waits for that loop.
func (s *Syncer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Publish sends a local change to every other participant.
func (s *Syncer) Publish(ctx context.Context, kind Kind, payload any) error {
	env, err := NewEnvelope(kind, s.Self(), payload, s.cfg.Clock.Now())
	if err != nil {
		return err
	}
	if err := s.cfg.Channel.Publish(ctx, env); err != nil {
		return oops.In("syncer").With("kind", kind).Wrap(err)
	}
	s.cfg.Metrics.Sync(string(kind), observability.DirectionSent)
	return nil
}

// RequestSync asks a game master for the current state. Game masters hold
// the authoritative copy and never ask.
func (s *Syncer) RequestSync(ctx context.Context) error {
	if s.cfg.Directory.IsGM(s.Self()) {
		return nil
	}
	return s.Publish(ctx, KindRequestSync, nil)
}

func (s *Syncer) handle(ctx context.Context, env Envelope) {
	self := s.Self()
	if env.SenderID == self {
		s.cfg.Metrics.Sync(string(env.Kind), observability.DirectionSuppressed)
		return
	}
	s.cfg.Metrics.Sync(string(env.Kind), observability.DirectionReceived)

	switch env.Kind {
	case KindQuestCreated, KindQuestUpdated, KindQuestDeleted, KindQuestStatusChanged:
		s.reload(ctx, env.Kind)
	case KindPermissionsUpdated:
		var p PermissionsPayload
		if err := env.Decode(&p); err != nil {
			errutil.LogErrorContext(ctx, slog.Default(), "bad permissions envelope", err)
			return
		}
		// Everyone shares the permissions document, so every receiver
		// reloads to keep its version current. Only the target is told.
		if p.TargetUserID != "" && p.TargetUserID != self {
			s.refresh(ctx, env.Kind)
			return
		}
		s.reload(ctx, env.Kind)
	case KindRequestSync:
		if !s.cfg.Directory.IsGM(self) {
			return
		}
		tree, perms := s.cfg.State.Export(ctx)
		reply := SyncDataPayload{TargetUserID: env.SenderID, QuestTree: tree, Permissions: perms}
		if err := s.Publish(ctx, KindSyncData, reply); err != nil {
			errutil.LogErrorContext(ctx, slog.Default(), "resync reply failed", err)
		}
	case KindSyncData:
		s.installSyncData(ctx, env, self)
	default:
		slog.Debug("ignoring unknown sync envelope", "kind", env.Kind, "sender", env.SenderID)
	}
}

func (s *Syncer) installSyncData(ctx context.Context, env Envelope, self string) {
	var p SyncDataPayload
	if err := env.Decode(&p); err != nil {
		errutil.LogErrorContext(ctx, slog.Default(), "bad sync data envelope", err)
		return
	}
	if env.Truncated {
		// The payload did not fit the transport; the target is unknown, so
		// every receiver refreshes from the store.
		s.reload(ctx, env.Kind)
		return
	}
	if p.TargetUserID != self {
		return
	}
	if err := s.cfg.State.Install(ctx, p.QuestTree, p.Permissions); err != nil {
		s.cfg.Metrics.Reload(string(env.Kind), observability.ResultError)
		errutil.LogErrorContext(ctx, slog.Default(), "installing sync data failed", err)
		return
	}
	s.cfg.Metrics.Reload(string(env.Kind), observability.ResultOK)
	s.changed(env.Kind)
}

func (s *Syncer) reload(ctx context.Context, kind Kind) {
	if s.refresh(ctx, kind) {
		s.changed(kind)
	}
}

// refresh reloads local state without running OnChange.
func (s *Syncer) refresh(ctx context.Context, kind Kind) bool {
	if err := s.cfg.State.Reload(ctx); err != nil {
		s.cfg.Metrics.Reload(string(kind), observability.ResultError)
		errutil.LogErrorContext(ctx, slog.Default(), "reload after remote change failed", err)
		return false
	}
	s.cfg.Metrics.Reload(string(kind), observability.ResultOK)
	return true
}

func (s *Syncer) changed(kind Kind) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(kind)
	}
}

// WatchDocuments reloads local state whenever the store reports a document
// version newer than the one loaded. It covers writers that do not publish
// envelopes, such as one-shot CLI invocations. Watching stops when ctx is
// done or the listener closes.
func (s *Syncer) WatchDocuments(ctx context.Context, listener Listener) error {
	ch, err := listener.Listen(ctx)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				change, err := ParseDocumentChange(payload)
				if err != nil {
					slog.Warn("ignoring malformed document notification", "payload", payload)
					continue
				}
				if change.Version <= s.cfg.State.DocumentVersion(change.Key) {
					continue
				}
				s.reload(ctx, Kind("document:"+change.Key))
			}
		}
	}()
	return nil
}
