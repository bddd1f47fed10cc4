// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package manager is the permission-gated facade over the quest graph.
//
// Every mutating operation follows the same turn: check the caller's
// capability, stage the change on a copy of the graph, validate the copy,
// persist it, commit it in memory, then publish a sync envelope. A failure
// at any step leaves the committed state untouched.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/inventory"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/syncer"
	"github.com/holomush/questkeeper/pkg/errutil"
)

var tracer = otel.Tracer("questkeeper/manager")

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, title, message string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, title, message string) (bool, error) {
	return f(ctx, title, message)
}

// Inventory resolves reward items and hands them to actors.
type Inventory interface {
	ResolveItem(ctx context.Context, ref string) (*inventory.Item, error)
	GrantItemCopy(ctx context.Context, actorRef string, item *inventory.Item, qty int) (*inventory.Grant, error)
}

// Publisher broadcasts local changes to other clients.
type Publisher interface {
	Publish(ctx context.Context, kind syncer.Kind, payload any) error
}

// Config holds the Manager's collaborators and settings.
type Config struct {
	Store     store.BlobStore
	Directory access.Directory
	Clock     core.Clock
	Limits    quest.Limits
	// OrphanPolicy applies to the children of a deleted quest.
	OrphanPolicy quest.OrphanPolicy
	// AutoSave persists every mutation. When false, mutations stay in
	// memory until Save.
	AutoSave bool
	// Notifications enables the informational notices sent on success.
	// Failures are always reported.
	Notifications bool
	// AppVersion is recorded in exports.
	AppVersion string

	Confirmer Confirmer
	Notifier  notify.Notifier
	Inventory Inventory
	Publisher Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Manager owns the local replica of the quest graph and the permission
// policy. It is safe for concurrent use; operations run one at a time.
type Manager struct {
	store         store.BlobStore
	dir           access.Directory
	clock         core.Clock
	limits        quest.Limits
	orphans       quest.OrphanPolicy
	autoSave      bool
	notifications bool
	appVersion    string
	confirmer     Confirmer
	notifier      notify.Notifier
	inventory     Inventory
	metrics       *observability.Metrics
	logger        *slog.Logger

	mu        sync.Mutex
	publisher Publisher
	graph     *quest.Graph
	policy    *access.Policy
	versions  map[string]int64
	dirty     map[string]bool
}

// New creates a Manager with an empty graph. Call Load to read the store.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, oops.In("manager").Code("INVALID_CONFIG").Errorf("store is required")
	}
	if cfg.Directory == nil {
		return nil, oops.In("manager").Code("INVALID_CONFIG").Errorf("directory is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.OrphanPolicy == "" {
		cfg.OrphanPolicy = quest.OrphanPromote
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:         cfg.Store,
		dir:           cfg.Directory,
		clock:         cfg.Clock,
		limits:        cfg.Limits,
		orphans:       cfg.OrphanPolicy,
		autoSave:      cfg.AutoSave,
		notifications: cfg.Notifications,
		appVersion:    cfg.AppVersion,
		confirmer:     cfg.Confirmer,
		notifier:      cfg.Notifier,
		inventory:     cfg.Inventory,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		graph:         quest.NewGraph(cfg.Limits),
		policy:        access.NewPolicy(),
		versions:      make(map[string]int64),
		dirty:         make(map[string]bool),
	}, nil
}

// SetPublisher installs the broadcaster. The syncer needs the Manager to
// exist first, so it is wired after construction.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// Load reads both documents from the store, replacing local state.
// Missing documents yield an empty graph and the default policy.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

// Reload implements syncer.State.
func (m *Manager) Reload(ctx context.Context) error {
	return m.Load(ctx)
}

func (m *Manager) load(ctx context.Context) error {
	var snap quest.Snapshot
	treeVersion, err := m.loadDocument(ctx, store.KeyQuestTree, &snap)
	if err != nil {
		return err
	}
	var rec access.PolicyRecord
	permVersion, err := m.loadDocument(ctx, store.KeyPermissions, &rec)
	if err != nil {
		return err
	}

	m.graph = quest.FromSnapshot(snap, m.limits)
	if permVersion == 0 {
		m.policy = access.NewPolicy()
	} else {
		m.policy = access.FromRecord(rec)
	}
	m.versions[store.KeyQuestTree] = treeVersion
	m.versions[store.KeyPermissions] = permVersion
	clear(m.dirty)
	m.updateGauge()

	if problems := m.graph.Verify(); len(problems) > 0 {
		m.logger.WarnContext(ctx, "loaded quest tree has integrity problems",
			"problems", len(problems), "first", problems[0].String())
	}
	m.logger.DebugContext(ctx, "state loaded",
		"quests", m.graph.Len(), "tree_version", treeVersion, "permissions_version", permVersion)
	return nil
}

// loadDocument decodes key into v. A missing key leaves v untouched and
// reports version 0.
func (m *Manager) loadDocument(ctx context.Context, key string, v any) (int64, error) {
	doc, err := m.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.In("manager").Code(CodeExternal).With("key", key).
			Public("Failed to load quest data").
			Wrapf(errors.Join(ErrExternal, err), "load %s", key)
	}
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, v); err != nil {
			return 0, oops.In("manager").Code("DOCUMENT_CORRUPT").With("key", key).
				With("version", doc.Version).
				Wrapf(err, "decode %s", key)
		}
	}
	return doc.Version, nil
}

// Install implements syncer.State. The installed state is not persisted
// and the loaded document versions are kept, so a later write against a
// store that moved on fails as stale instead of overwriting it.
func (m *Manager) Install(ctx context.Context, tree quest.Snapshot, perms access.PolicyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graph = quest.FromSnapshot(tree, m.limits)
	m.policy = access.FromRecord(perms)
	m.updateGauge()
	m.logger.DebugContext(ctx, "state installed from peer", "quests", m.graph.Len())
	return nil
}

// Export implements syncer.State.
func (m *Manager) Export(_ context.Context) (quest.Snapshot, access.PolicyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.ToSnapshot(), m.policy.ToRecord()
}

// DocumentVersion implements syncer.State.
func (m *Manager) DocumentVersion(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[key]
}

// Dirty reports whether there are unsaved changes.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty) > 0
}

// Save writes every document changed since the last save. It is only
// needed when AutoSave is off.
func (m *Manager) Save(ctx context.Context) (err error) {
	ctx, done := m.begin(ctx, "save", "")
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty[store.KeyQuestTree] {
		if err := m.write(ctx, store.KeyQuestTree, m.graph.ToSnapshot()); err != nil {
			return err
		}
	}
	if m.dirty[store.KeyPermissions] {
		if err := m.write(ctx, store.KeyPermissions, m.policy.ToRecord()); err != nil {
			return err
		}
	}
	return nil
}

// commitGraph persists staged (when auto-saving) and makes it current.
func (m *Manager) commitGraph(ctx context.Context, staged *quest.Graph) error {
	staged.MarkModified(m.clock.Now())
	if err := m.persist(ctx, store.KeyQuestTree, staged.ToSnapshot()); err != nil {
		return err
	}
	m.graph = staged
	m.updateGauge()
	return nil
}

// commitPolicy persists staged (when auto-saving) and makes it current.
func (m *Manager) commitPolicy(ctx context.Context, staged *access.Policy) error {
	if err := m.persist(ctx, store.KeyPermissions, staged.ToRecord()); err != nil {
		return err
	}
	m.policy = staged
	return nil
}

func (m *Manager) persist(ctx context.Context, key string, v any) error {
	if !m.autoSave {
		m.dirty[key] = true
		return nil
	}
	return m.write(ctx, key, v)
}

func (m *Manager) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return oops.In("manager").Code("ENCODE_FAILED").With("key", key).Wrap(err)
	}
	expected := m.versions[key]
	version, err := m.store.Save(ctx, key, data, expected)
	if errors.Is(err, store.ErrVersionConflict) {
		return oops.In("manager").Code(CodeStaleWrite).
			With("key", key).
			With("expected_version", expected).
			Public("Quest data was changed elsewhere; reload and try again").
			Wrap(err)
	}
	if err != nil {
		return oops.In("manager").Code(CodeExternal).With("key", key).
			Public("Failed to save quest data").
			Wrapf(errors.Join(ErrExternal, err), "save %s", key)
	}
	m.versions[key] = version
	delete(m.dirty, key)
	return nil
}

// publish broadcasts a change. The change is already committed, so a
// failed broadcast is logged and not returned.
func (m *Manager) publish(ctx context.Context, kind syncer.Kind, payload any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, kind, payload); err != nil {
		errutil.LogErrorContext(ctx, m.logger, "broadcast failed", err)
	}
}

// inform sends a success notice when notifications are enabled.
func (m *Manager) inform(ctx context.Context, kind, questID, message string) {
	if !m.notifications {
		return
	}
	m.notifier.Notify(ctx, notify.Notice{Level: notify.LevelInfo, Kind: kind, QuestID: questID, Message: message})
}

func (m *Manager) warn(ctx context.Context, kind, questID, message string) {
	m.notifier.Notify(ctx, notify.Notice{Level: notify.LevelWarn, Kind: kind, QuestID: questID, Message: message})
}

func (m *Manager) updateGauge() {
	counts := make(map[string]int, 3)
	for _, s := range quest.Statuses() {
		counts[string(s)] = 0
	}
	for _, q := range m.graph.All() {
		counts[string(q.Status)]++
	}
	m.metrics.SetQuestCounts(counts)
}

// begin opens a span for op and returns the function that closes it.
// The closer records the outcome and reports failures to the user.
func (m *Manager) begin(ctx context.Context, op, userID string) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "manager."+op,
		trace.WithAttributes(
			attribute.String("operation", op),
			attribute.String("user.id", userID),
		),
	)
	return ctx, func(errp *error) {
		err := *errp
		m.metrics.Operation(op, resultOf(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.report(ctx, op, err)
		}
		span.End()
	}
}

func (m *Manager) report(ctx context.Context, op string, err error) {
	level := notify.LevelError
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrRewardsUnavailable) {
		level = notify.LevelWarn
	} else {
		errutil.LogErrorContext(ctx, m.logger, op+" failed", err)
	}
	m.notifier.Notify(ctx, notify.Notice{
		Level:   level,
		Kind:    notify.KindFailure,
		Message: oops.GetPublic(err, "Operation failed: "+op),
	})
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return observability.ResultOK
	case errors.Is(err, ErrPermissionDenied):
		return observability.ResultDenied
	case errors.Is(err, ErrStaleWrite):
		return observability.ResultConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.ResultCanceled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCircularDependency), errors.Is(err, ErrRewardsUnavailable):
		return observability.ResultInvalid
	default:
		return observability.ResultError
	}
}
