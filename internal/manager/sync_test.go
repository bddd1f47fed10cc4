// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/access/accesstest"
	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/syncer"
)

// client is one participant: a Manager kept current by its own Syncer.
type client struct {
	m       *Manager
	sync    *syncer.Syncer
	changes chan syncer.Kind
}

// newClient starts a client for user. gmUser is always a game master;
// extraGMs adds more.
func newClient(t *testing.T, hub *syncer.Hub, st store.BlobStore, user string, extraGMs ...string) *client {
	t.Helper()
	dir := accesstest.NewDirectory(user, append([]string{gmUser}, extraGMs...)...)
	m, err := New(Config{
		Store:     st,
		Directory: dir,
		Clock:     core.NewManualClock(testNow),
		Limits:    quest.DefaultLimits(),
		AutoSave:  true,
	})
	require.NoError(t, err)
	require.NoError(t, m.Load(context.Background()))

	c := &client{m: m, changes: make(chan syncer.Kind, 32)}
	c.sync = syncer.New(syncer.Config{
		Channel:   hub,
		State:     m,
		Directory: dir,
		OnChange:  func(k syncer.Kind) { c.changes <- k },
	})
	c.sync.Start(context.Background())
	m.SetPublisher(c.sync)
	t.Cleanup(c.sync.Stop)
	return c
}

func (c *client) await(t *testing.T, want syncer.Kind) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-c.changes:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestMultiClientSync(t *testing.T) {
	ctx := context.Background()
	hub := syncer.NewHub()
	t.Cleanup(hub.Close)
	st := store.NewMemoryStore()

	gm := newClient(t, hub, st, gmUser)
	bob := newClient(t, hub, st, bobUser)

	a, err := gm.m.CreateQuest(ctx, quest.Record{Title: "A"}, gmUser)
	require.NoError(t, err)
	bob.await(t, syncer.KindQuestCreated)
	_, err = bob.m.GetQuest(ctx, a.ID, bobUser)
	require.NoError(t, err)

	b, err := gm.m.CreateQuest(ctx, quest.Record{Title: "B", ParentID: a.ID}, gmUser)
	require.NoError(t, err)
	bob.await(t, syncer.KindQuestCreated)

	_, err = gm.m.MoveQuest(ctx, a.ID, b.ID, gmUser)
	require.ErrorIs(t, err, ErrCircularDependency)

	path, err := bob.m.Path(ctx, b.ID, bobUser)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, a.ID, path[0].ID)

	_, err = bob.m.CreateQuest(ctx, quest.Record{Title: "C"}, bobUser)
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, gm.m.ApplyPreset(ctx, bobUser, access.PresetContributor, gmUser))
	bob.await(t, syncer.KindPermissionsUpdated)

	c, err := bob.m.CreateQuest(ctx, quest.Record{Title: "C"}, bobUser)
	require.NoError(t, err)
	gm.await(t, syncer.KindQuestCreated)
	got, err := gm.m.GetQuest(ctx, c.ID, gmUser)
	require.NoError(t, err)
	assert.Equal(t, bobUser, got.CreatedBy)

	_, err = gm.m.ChangeQuestStatus(ctx, a.ID, quest.StatusCompleted, gmUser)
	require.NoError(t, err)
	bob.await(t, syncer.KindQuestStatusChanged)
	a2, err := bob.m.GetQuest(ctx, a.ID, bobUser)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, a2.Status)
}

func TestMultiClientSync_TargetedPolicyChangeKeepsOtherGMsCurrent(t *testing.T) {
	ctx := context.Background()
	hub := syncer.NewHub()
	t.Cleanup(hub.Close)
	st := store.NewMemoryStore()
	const coGM = "gm2"

	gm := newClient(t, hub, st, gmUser, coGM)
	co := newClient(t, hub, st, coGM, coGM)
	bob := newClient(t, hub, st, bobUser, coGM)

	require.NoError(t, gm.m.ApplyPreset(ctx, bobUser, access.PresetContributor, gmUser))
	bob.await(t, syncer.KindPermissionsUpdated)
	require.Eventually(t, func() bool {
		return co.m.DocumentVersion(store.KeyPermissions) == gm.m.DocumentVersion(store.KeyPermissions)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, co.m.SetDefaultPermission(ctx, access.CapDelete, true, coGM))
	gm.await(t, syncer.KindPermissionsUpdated)
	assert.True(t, gm.m.HasPermission("carol", access.CapDelete))
	assert.True(t, gm.m.HasPermission(bobUser, access.CapAdd), "bob's preset survives the second write")
}

func TestMultiClientSync_RequestSync(t *testing.T) {
	ctx := context.Background()
	hub := syncer.NewHub()
	t.Cleanup(hub.Close)

	gm := newClient(t, hub, store.NewMemoryStore(), gmUser)
	// bob reads a different store, so only the resync reply can teach
	// bob about the quest.
	bob := newClient(t, hub, store.NewMemoryStore(), bobUser)

	q, err := gm.m.CreateQuest(ctx, quest.Record{Title: "Shared"}, gmUser)
	require.NoError(t, err)
	_, err = bob.m.GetQuest(ctx, q.ID, bobUser)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, bob.sync.RequestSync(ctx))
	bob.await(t, syncer.KindSyncData)

	got, err := bob.m.GetQuest(ctx, q.ID, bobUser)
	require.NoError(t, err)
	assert.Equal(t, "Shared", got.Title)
	assert.Zero(t, bob.m.DocumentVersion(store.KeyQuestTree), "installed state is not persisted")
}

type chanListener chan string

func (l chanListener) Listen(context.Context) (<-chan string, error) {
	return l, nil
}

func TestWatchDocuments_ReloadsOnNewerVersion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := syncer.NewHub()
	t.Cleanup(hub.Close)
	st := store.NewMemoryStore()

	watcher := newClient(t, hub, st, bobUser)
	// The writer is not on the hub, like a one-shot CLI invocation.
	writer := newFixture(t, func(c *Config) { c.Store = st })
	q := writer.create(t, "Written elsewhere", "")

	events := make(chanListener, 4)
	require.NoError(t, watcher.sync.WatchDocuments(ctx, events))
	t.Cleanup(cancel)

	events <- fmt.Sprintf("%s:%d", store.KeyQuestTree, 0)
	events <- fmt.Sprintf("%s:%d", store.KeyQuestTree, writer.m.DocumentVersion(store.KeyQuestTree))
	watcher.await(t, syncer.Kind("document:"+store.KeyQuestTree))

	_, err := watcher.m.GetQuest(ctx, q.ID, bobUser)
	require.NoError(t, err)
}
