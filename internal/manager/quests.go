// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/syncer"
)

// CopySuffix is appended to the title of a duplicated quest.
const CopySuffix = " (copy)"

// Buckets groups quests by status. Every status has an entry.
type Buckets map[quest.Status][]*quest.Quest

func emptyBuckets() Buckets {
	b := make(Buckets, 3)
	for _, s := range quest.Statuses() {
		b[s] = []*quest.Quest{}
	}
	return b
}

// TreeNode is one quest with its sub-quests, in display order.
type TreeNode struct {
	Quest    *quest.Quest
	Children []TreeNode
}

// authorize requires the caller to hold c. Callers hold m.mu.
func (m *Manager) authorize(userID string, c access.Capability) error {
	if m.policy.HasPermission(m.dir, userID, c) {
		return nil
	}
	return errDenied(userID, c)
}

// HasPermission reports whether userID currently holds c.
func (m *Manager) HasPermission(userID string, c access.Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy.HasPermission(m.dir, userID, c)
}

// CreateQuest adds a quest built from partial. Omitted fields take their
// defaults; a zero SortOrder places the quest after its siblings.
func (m *Manager) CreateQuest(ctx context.Context, partial quest.Record, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "create", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapAdd); err != nil {
		return nil, err
	}
	q, err := m.insert(ctx, quest.New(partial, userID, m.clock.Now()), partial.SortOrder == 0)
	if err != nil {
		return nil, err
	}
	m.inform(ctx, notify.KindQuestCreated, q.ID, fmt.Sprintf("Quest %q created", q.Title))
	return q, nil
}

// insert validates and commits a new quest. Callers hold m.mu.
func (m *Manager) insert(ctx context.Context, q *quest.Quest, placeLast bool) (*quest.Quest, error) {
	if verrs := q.Validate(m.limits); len(verrs) > 0 {
		return nil, errInvalid(verrs)
	}
	// A fresh id cannot be anyone's ancestor, so this only trips on a
	// caller-supplied id that already sits above the parent.
	if q.ParentID != "" && m.graph.WouldCreateCycle(q.ID, q.ParentID) {
		return nil, errCircular(q.ID, q.ParentID)
	}
	staged := m.graph.Clone()
	if placeLast {
		q.SortOrder = staged.NextSortOrder(q.ParentID)
	}
	if err := staged.Add(q); err != nil {
		return nil, classify(err)
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.publish(ctx, syncer.KindQuestCreated, syncer.QuestPayload{Quest: q.ToRecord()})
	return q.Clone(), nil
}

// GetQuest returns a copy of the quest.
func (m *Manager) GetQuest(ctx context.Context, id, userID string) (_ *quest.Quest, err error) {
	_, done := m.begin(ctx, "get", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapView); err != nil {
		return nil, err
	}
	q, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	return q.Clone(), nil
}

// UpdateQuest applies patch to the quest. The patch is applied to a staged
// copy; nothing changes unless the result validates and persists.
func (m *Manager) UpdateQuest(ctx context.Context, id string, patch quest.Patch, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "update", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapEdit); err != nil {
		return nil, err
	}
	q, err := m.update(ctx, id, patch, userID)
	if err != nil {
		return nil, err
	}
	m.inform(ctx, notify.KindQuestUpdated, q.ID, fmt.Sprintf("Quest %q updated", q.Title))
	return q, nil
}

// ChangeQuestStatus sets the quest's status. It requires only the
// changeStatus capability.
func (m *Manager) ChangeQuestStatus(ctx context.Context, id string, status quest.Status, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "change_status", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapChangeStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, errInvalidf("unrecognized status %q", status)
	}
	q, err := m.update(ctx, id, quest.Patch{Status: &status}, userID)
	if err != nil {
		return nil, err
	}
	m.inform(ctx, notify.KindQuestStatusChanged, q.ID, fmt.Sprintf("Quest %q is now %s", q.Title, q.Status))
	return q, nil
}

// update runs the staged patch. Callers hold m.mu and have authorized.
func (m *Manager) update(ctx context.Context, id string, patch quest.Patch, userID string) (*quest.Quest, error) {
	cur, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	oldStatus := cur.Status
	if patch.ParentID != nil && *patch.ParentID != "" && m.graph.WouldCreateCycle(id, *patch.ParentID) {
		return nil, errCircular(id, *patch.ParentID)
	}

	staged := m.graph.Clone()
	if err := staged.ApplyPatch(id, patch, userID, m.clock.Now()); err != nil {
		return nil, classify(err)
	}
	q, _ := staged.Get(id)
	if verrs := q.Validate(m.limits); len(verrs) > 0 {
		return nil, errInvalid(verrs)
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}

	m.announceChange(ctx, q, oldStatus)
	return q.Clone(), nil
}

// announceChange publishes the change to q and reports quests that its
// completion unlocked. Callers hold m.mu.
func (m *Manager) announceChange(ctx context.Context, q *quest.Quest, oldStatus quest.Status) {
	if q.Status != oldStatus {
		m.publish(ctx, syncer.KindQuestStatusChanged, syncer.StatusChangedPayload{
			QuestID:   q.ID,
			OldStatus: oldStatus,
			NewStatus: q.Status,
		})
	} else {
		m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	}
	if q.Status == quest.StatusCompleted && oldStatus != quest.StatusCompleted {
		for _, u := range m.graph.Unlocked(q.ID) {
			m.inform(ctx, notify.KindQuestUnlocked, u.ID, fmt.Sprintf("Quest %q is now available", u.Title))
		}
	}
}

// CompleteQuest marks the quest completed by actorRef, whatever its status.
func (m *Manager) CompleteQuest(ctx context.Context, id, actorRef, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "complete", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapChangeStatus); err != nil {
		return nil, err
	}
	if actorRef == "" {
		return nil, errInvalidf("an actor is required to complete a quest")
	}
	cur, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	oldStatus := cur.Status

	staged := m.graph.Clone()
	q, _ := staged.Get(id)
	q.MarkCompletedBy(actorRef, userID, m.clock.Now())
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.announceChange(ctx, q, oldStatus)
	m.inform(ctx, notify.KindQuestCompleted, q.ID, fmt.Sprintf("Quest %q completed by %s", q.Title, actorRef))
	return q.Clone(), nil
}

// DeleteQuest removes the quest after confirmation. Children are handled by
// the configured orphan policy. It reports false when the user declined.
func (m *Manager) DeleteQuest(ctx context.Context, id, userID string) (_ bool, err error) {
	ctx, done := m.begin(ctx, "delete", userID)
	defer done(&err)

	m.mu.Lock()
	if err := m.authorize(userID, access.CapDelete); err != nil {
		m.mu.Unlock()
		return false, err
	}
	q, ok := m.graph.Get(id)
	if !ok {
		m.mu.Unlock()
		return false, errNotFound(id)
	}
	message := deleteMessage(q.Title, len(q.ChildrenIDs), m.orphans)
	m.mu.Unlock()

	if ok, err := m.confirm(ctx, "Delete quest", message); err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok = m.graph.Get(id)
	if !ok {
		return false, errNotFound(id)
	}
	title := q.Title
	staged := m.graph.Clone()
	removed, err := staged.Delete(id, m.orphans)
	if err != nil {
		return false, classify(err)
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return false, err
	}
	m.publish(ctx, syncer.KindQuestDeleted, syncer.QuestDeletedPayload{QuestID: id, QuestTitle: title})
	m.logger.InfoContext(ctx, "quest deleted", "quest_id", id, "removed", len(removed), "user", userID)
	m.inform(ctx, notify.KindQuestDeleted, id, fmt.Sprintf("Quest %q deleted", title))
	return true, nil
}

func deleteMessage(title string, children int, policy quest.OrphanPolicy) string {
	msg := fmt.Sprintf("Delete quest %q?", title)
	if children == 0 {
		return msg
	}
	switch policy {
	case quest.OrphanCascade:
		return msg + fmt.Sprintf(" Its %d sub-quest(s) will be deleted too.", children)
	case quest.OrphanReject:
		return msg + fmt.Sprintf(" It still has %d sub-quest(s).", children)
	default:
		return msg + fmt.Sprintf(" Its %d sub-quest(s) will become top-level quests.", children)
	}
}

// confirm asks the Confirmer. Without one, every prompt is approved.
// Callers must not hold m.mu.
func (m *Manager) confirm(ctx context.Context, title, message string) (bool, error) {
	if m.confirmer == nil {
		return true, nil
	}
	ok, err := m.confirmer.Confirm(ctx, title, message)
	if err != nil {
		return false, classifyExternal(err, "confirmation failed")
	}
	return ok, nil
}

// MoveQuest makes newParentID the parent of the quest, or moves it to the
// top level when newParentID is empty. The quest goes after its new
// siblings.
func (m *Manager) MoveQuest(ctx context.Context, id, newParentID, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "move", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapEdit); err != nil {
		return nil, err
	}
	cur, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	if cur.ParentID == newParentID {
		return cur.Clone(), nil
	}
	if newParentID != "" && m.graph.WouldCreateCycle(id, newParentID) {
		return nil, errCircular(id, newParentID)
	}

	staged := m.graph.Clone()
	order := staged.NextSortOrder(newParentID)
	if err := staged.SetParent(id, newParentID); err != nil {
		return nil, classify(err)
	}
	q, _ := staged.Get(id)
	q.SortOrder = order
	q.Touch(userID, m.clock.Now())
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	m.inform(ctx, notify.KindQuestUpdated, id, fmt.Sprintf("Quest %q moved", q.Title))
	return q.Clone(), nil
}

// ReorderQuest places the quest just before or after targetID, adopting
// the target's parent.
func (m *Manager) ReorderQuest(ctx context.Context, id, targetID string, before bool, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "reorder", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapEdit); err != nil {
		return nil, err
	}
	if _, ok := m.graph.Get(id); !ok {
		return nil, errNotFound(id)
	}
	target, ok := m.graph.Get(targetID)
	if !ok {
		return nil, errNotFound(targetID)
	}
	if target.ParentID != "" && m.graph.WouldCreateCycle(id, target.ParentID) {
		return nil, errCircular(id, target.ParentID)
	}

	staged := m.graph.Clone()
	if err := staged.Reorder(id, targetID, before); err != nil {
		return nil, classify(err)
	}
	q, _ := staged.Get(id)
	q.Touch(userID, m.clock.Now())
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	return q.Clone(), nil
}

// DuplicateQuest copies the quest next to the original. The copy has a
// fresh id, no sub-quests and no completion data. It keeps the source's
// blockers and blocked quests, and each of those gains the mirrored link,
// so a partner already at the relation limit makes the copy fail.
func (m *Manager) DuplicateQuest(ctx context.Context, id, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "duplicate", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapAdd); err != nil {
		return nil, err
	}
	src, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}

	rec := src.ToRecord()
	rec.ID = ""
	rec.Title += CopySuffix
	rec.ChildrenIDs = nil
	rec.CompletedBy = ""
	rec.CompletedAt = nil
	rec.RewardsDistributed = false
	rec.CreatedAt, rec.UpdatedAt = time.Time{}, time.Time{}
	rec.CreatedBy, rec.UpdatedBy = "", ""
	if rec.Status == quest.StatusCompleted {
		rec.Status = quest.StatusKnown
	}

	q, err := m.insert(ctx, quest.New(rec, userID, m.clock.Now()), true)
	if err != nil {
		return nil, err
	}
	m.inform(ctx, notify.KindQuestCreated, q.ID, fmt.Sprintf("Quest %q created", q.Title))
	return q, nil
}

// Path returns the quest preceded by its ancestors, root first.
func (m *Manager) Path(ctx context.Context, id, userID string) (_ []*quest.Quest, err error) {
	_, done := m.begin(ctx, "path", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapView); err != nil {
		return nil, err
	}
	q, ok := m.graph.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	return cloneAll(append(m.graph.Ancestors(id), q)), nil
}

// Descendants returns every quest below id, depth first.
func (m *Manager) Descendants(ctx context.Context, id, userID string) (_ []*quest.Quest, err error) {
	_, done := m.begin(ctx, "descendants", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapView); err != nil {
		return nil, err
	}
	if _, ok := m.graph.Get(id); !ok {
		return nil, errNotFound(id)
	}
	return cloneAll(m.graph.Descendants(id)), nil
}

// GetAllQuestsByStatus groups every quest by status. Without the view
// capability it returns empty buckets and ErrPermissionDenied.
func (m *Manager) GetAllQuestsByStatus(ctx context.Context, userID string) (_ Buckets, err error) {
	_, done := m.begin(ctx, "list", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := emptyBuckets()
	if err := m.authorize(userID, access.CapView); err != nil {
		return buckets, err
	}
	for _, q := range m.graph.All() {
		buckets[q.Status] = append(buckets[q.Status], q.Clone())
	}
	return buckets, nil
}

// Tree returns the whole forest in display order.
func (m *Manager) Tree(ctx context.Context, userID string) (_ []TreeNode, err error) {
	_, done := m.begin(ctx, "tree", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapView); err != nil {
		return nil, err
	}
	visited := make(map[string]bool, m.graph.Len())
	var build func([]*quest.Quest) []TreeNode
	build = func(qs []*quest.Quest) []TreeNode {
		nodes := make([]TreeNode, 0, len(qs))
		for _, q := range qs {
			if visited[q.ID] {
				continue
			}
			visited[q.ID] = true
			nodes = append(nodes, TreeNode{Quest: q.Clone(), Children: build(m.graph.Children(q.ID))})
		}
		return nodes
	}
	return build(m.graph.Roots()), nil
}

// Len returns the number of quests held locally.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Len()
}

func cloneAll(qs []*quest.Quest) []*quest.Quest {
	out := make([]*quest.Quest, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}
