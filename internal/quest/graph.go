// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/samber/oops"
)

// OrphanPolicy decides what happens to the children of a deleted quest.
type OrphanPolicy string

// Orphan policies.
const (
	// OrphanPromote detaches the children and makes them roots.
	OrphanPromote OrphanPolicy = "promote"
	// OrphanCascade deletes the whole subtree.
	OrphanCascade OrphanPolicy = "cascade"
	// OrphanReject refuses to delete a quest that still has children.
	OrphanReject OrphanPolicy = "reject"
)

// ParseOrphanPolicy converts a configuration string to an OrphanPolicy.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(s); p {
	case OrphanPromote, OrphanCascade, OrphanReject:
		return p, nil
	case "":
		return OrphanPromote, nil
	default:
		return "", fmt.Errorf("unknown orphan policy %q", s)
	}
}

// Graph owns every quest and the ordered list of root ids.
//
// The parent/child links always form a forest. ChildrenIDs mirrors ParentID and
// BlocksIDs pairs with BlockedByIDs; every mutator keeps both in step.
// A Graph is not safe for concurrent use.
type Graph struct {
	quests       map[string]*Quest
	roots        []string
	limits       Limits
	lastModified time.Time
	version      string
}

// NewGraph creates an empty graph.
func NewGraph(limits Limits) *Graph {
	return &Graph{
		quests:  make(map[string]*Quest),
		roots:   []string{},
		limits:  limits.withDefaults(),
		version: FormatVersion,
	}
}

// Limits returns the limits the graph enforces.
func (g *Graph) Limits() Limits {
	return g.limits
}

// Len returns the number of quests.
func (g *Graph) Len() int {
	return len(g.quests)
}

// LastModified returns the time of the last recorded mutation.
func (g *Graph) LastModified() time.Time {
	return g.lastModified
}

// MarkModified stamps the graph as changed at now.
func (g *Graph) MarkModified(now time.Time) {
	g.lastModified = now
}

// Get returns the quest with the given id.
func (g *Graph) Get(id string) (*Quest, bool) {
	q, ok := g.quests[id]
	return q, ok
}

// All returns every quest ordered by sort order, then creation time, then id.
func (g *Graph) All() []*Quest {
	out := make([]*Quest, 0, len(g.quests))
	for _, q := range g.quests {
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b *Quest) int {
		return cmp.Or(
			cmp.Compare(a.SortOrder, b.SortOrder),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// RootIDs returns a copy of the ordered root id list.
func (g *Graph) RootIDs() []string {
	return slices.Clone(g.roots)
}

// Roots resolves the root list, dropping dangling ids, sorted by SortOrder.
func (g *Graph) Roots() []*Quest {
	return g.resolveSorted(g.roots)
}

// Children resolves the children of parentID sorted by SortOrder. An unknown
// parent has no children.
func (g *Graph) Children(parentID string) []*Quest {
	parent, ok := g.quests[parentID]
	if !ok {
		return nil
	}
	return g.resolveSorted(parent.ChildrenIDs)
}

func (g *Graph) resolveSorted(ids []string) []*Quest {
	out := make([]*Quest, 0, len(ids))
	for _, id := range ids {
		if q, ok := g.quests[id]; ok {
			out = append(out, q)
		}
	}
	slices.SortStableFunc(out, func(a, b *Quest) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return out
}

// Add inserts a new quest. Parent, blocker and relation references are
// checked first, as is the room left on every quest that gains a mirrored
// link. The quest's ChildrenIDs are ignored since a new quest cannot have
// children yet.
func (g *Graph) Add(q *Quest) error {
	if _, exists := g.quests[q.ID]; exists {
		return oops.In("quest").Code(CodeDuplicateID).With("quest_id", q.ID).Wrap(ErrDuplicateID)
	}

	parentID := q.ParentID
	if parentID != "" {
		if g.WouldCreateCycle(q.ID, parentID) {
			return errCircular(q.ID, parentID)
		}
		if err := g.checkAttach(parentID); err != nil {
			return err
		}
	}
	blockedBy, err := g.checkRefs(q.ID, q.BlockedByIDs)
	if err != nil {
		return err
	}
	blocks, err := g.checkRefs(q.ID, q.BlocksIDs)
	if err != nil {
		return err
	}
	related, err := g.checkRefs(q.ID, q.RelatedIDs)
	if err != nil {
		return err
	}
	gained := linkGain{}
	if parentID != "" {
		gained[parentID]++
	}
	g.countGain(gained, q.ID, blockedBy, blocksOf)
	g.countGain(gained, q.ID, blocks, blockedByOf)
	if err := g.checkRoom(gained); err != nil {
		return err
	}

	q.ParentID = ""
	q.ChildrenIDs = []string{}
	q.BlockedByIDs = []string{}
	q.BlocksIDs = []string{}
	q.RelatedIDs = related
	g.quests[q.ID] = q
	g.roots = append(g.roots, q.ID)

	if parentID != "" {
		g.attach(q, parentID)
	}
	g.pairBlockers(q, blockedBy)
	g.pairBlocks(q, blocks)
	return nil
}

// Delete removes a quest and scrubs every reference to it. Children are
// handled according to policy. It returns the ids that were removed.
func (g *Graph) Delete(id string, policy OrphanPolicy) ([]string, error) {
	q, ok := g.quests[id]
	if !ok {
		return nil, errNotFound(id)
	}

	removed := []string{id}
	switch policy {
	case OrphanReject:
		if q.HasChildren() {
			return nil, oops.In("quest").
				Code(CodeHasChildren).
				With("quest_id", id).
				With("children", len(q.ChildrenIDs)).
				Wrap(ErrHasChildren)
		}
	case OrphanCascade:
		for _, d := range g.Descendants(id) {
			removed = append(removed, d.ID)
		}
	default:
		for _, childID := range q.ChildrenIDs {
			if child, ok := g.quests[childID]; ok {
				child.ParentID = ""
				g.roots = appendUnique(g.roots, childID)
			}
		}
		q.ChildrenIDs = nil
	}

	gone := make(map[string]bool, len(removed))
	for _, rid := range removed {
		gone[rid] = true
		delete(g.quests, rid)
	}
	drop := func(ids []string) []string {
		return slices.DeleteFunc(ids, func(s string) bool { return gone[s] })
	}
	for _, other := range g.quests {
		other.ChildrenIDs = drop(other.ChildrenIDs)
		other.BlockedByIDs = drop(other.BlockedByIDs)
		other.BlocksIDs = drop(other.BlocksIDs)
		other.RelatedIDs = drop(other.RelatedIDs)
	}
	g.roots = drop(g.roots)
	return removed, nil
}

// WouldCreateCycle reports whether making potentialParentID the parent of
// questID would close a loop. It walks the ancestors of potentialParentID
// with a visited set, so a pre-existing corrupt loop also reports true.
// Self-parenting is always circular.
func (g *Graph) WouldCreateCycle(questID, potentialParentID string) bool {
	if potentialParentID == "" {
		return false
	}
	if questID == potentialParentID {
		return true
	}
	visited := make(map[string]bool)
	for cur := potentialParentID; cur != ""; {
		if cur == questID || visited[cur] {
			return true
		}
		visited[cur] = true
		q, ok := g.quests[cur]
		if !ok {
			return false
		}
		cur = q.ParentID
	}
	return false
}

// SetParent moves a quest under parentID, or to the root list when parentID
// is empty. The cycle check runs before anything is changed.
func (g *Graph) SetParent(id, parentID string) error {
	q, ok := g.quests[id]
	if !ok {
		return errNotFound(id)
	}
	if q.ParentID == parentID {
		return nil
	}
	if parentID != "" {
		if g.WouldCreateCycle(id, parentID) {
			return errCircular(id, parentID)
		}
		if err := g.checkAttach(parentID); err != nil {
			return err
		}
		if err := g.checkRoom(linkGain{parentID: 1}); err != nil {
			return err
		}
	}
	g.detach(q)
	if parentID == "" {
		g.roots = appendUnique(g.roots, id)
		return nil
	}
	g.attach(q, parentID)
	return nil
}

func (g *Graph) checkAttach(parentID string) error {
	parent, ok := g.quests[parentID]
	if !ok {
		return errNotFound(parentID)
	}
	if len(parent.ChildrenIDs) >= g.limits.MaxChildren {
		return oops.In("quest").
			Code(CodeTooManyChildren).
			With("parent_id", parentID).
			With("max_children", g.limits.MaxChildren).
			Wrap(ErrTooManyChildren)
	}
	return nil
}

// detach unlinks q from its parent or from the root list.
func (g *Graph) detach(q *Quest) {
	if q.ParentID == "" {
		g.roots = slices.DeleteFunc(g.roots, func(s string) bool { return s == q.ID })
		return
	}
	if parent, ok := g.quests[q.ParentID]; ok {
		parent.ChildrenIDs = slices.DeleteFunc(parent.ChildrenIDs, func(s string) bool { return s == q.ID })
	}
	q.ParentID = ""
}

// attach links a detached q under parentID.
func (g *Graph) attach(q *Quest, parentID string) {
	g.roots = slices.DeleteFunc(g.roots, func(s string) bool { return s == q.ID })
	parent := g.quests[parentID]
	parent.ChildrenIDs = appendUnique(parent.ChildrenIDs, q.ID)
	q.ParentID = parentID
}

// SetBlockedBy replaces the blockers of id and updates the paired BlocksIDs
// on both the old and the new blockers.
func (g *Graph) SetBlockedBy(id string, blockerIDs []string) error {
	q, ok := g.quests[id]
	if !ok {
		return errNotFound(id)
	}
	ids, err := g.checkRefs(id, blockerIDs)
	if err != nil {
		return err
	}
	gained := linkGain{}
	g.countGain(gained, id, ids, blocksOf)
	if err := g.checkRoom(gained); err != nil {
		return err
	}
	for _, old := range q.BlockedByIDs {
		if b, ok := g.quests[old]; ok {
			b.BlocksIDs = slices.DeleteFunc(b.BlocksIDs, func(s string) bool { return s == id })
		}
	}
	q.BlockedByIDs = []string{}
	g.pairBlockers(q, ids)
	return nil
}

// SetBlocks replaces the quests id blocks and updates the paired
// BlockedByIDs on both the old and the new targets.
func (g *Graph) SetBlocks(id string, blockedIDs []string) error {
	q, ok := g.quests[id]
	if !ok {
		return errNotFound(id)
	}
	ids, err := g.checkRefs(id, blockedIDs)
	if err != nil {
		return err
	}
	gained := linkGain{}
	g.countGain(gained, id, ids, blockedByOf)
	if err := g.checkRoom(gained); err != nil {
		return err
	}
	for _, old := range q.BlocksIDs {
		if b, ok := g.quests[old]; ok {
			b.BlockedByIDs = slices.DeleteFunc(b.BlockedByIDs, func(s string) bool { return s == id })
		}
	}
	q.BlocksIDs = []string{}
	g.pairBlocks(q, ids)
	return nil
}

// SetRelated replaces the related list. Related links are not mirrored.
func (g *Graph) SetRelated(id string, relatedIDs []string) error {
	q, ok := g.quests[id]
	if !ok {
		return errNotFound(id)
	}
	ids, err := g.checkRefs(id, relatedIDs)
	if err != nil {
		return err
	}
	q.RelatedIDs = ids
	return nil
}

func (g *Graph) pairBlockers(q *Quest, blockerIDs []string) {
	for _, bid := range blockerIDs {
		q.BlockedByIDs = appendUnique(q.BlockedByIDs, bid)
		b := g.quests[bid]
		b.BlocksIDs = appendUnique(b.BlocksIDs, q.ID)
	}
}

func (g *Graph) pairBlocks(q *Quest, blockedIDs []string) {
	for _, bid := range blockedIDs {
		q.BlocksIDs = appendUnique(q.BlocksIDs, bid)
		b := g.quests[bid]
		b.BlockedByIDs = appendUnique(b.BlockedByIDs, q.ID)
	}
}

// linkGain counts, per quest id, the mirrored links a change would add.
type linkGain map[string]int

func blocksOf(q *Quest) []string { return q.BlocksIDs }
func blockedByOf(q *Quest) []string { return q.BlockedByIDs }

// countGain records a new mirrored link on every partner in ids whose
// mirror list does not name self yet.
func (g *Graph) countGain(gained linkGain, self string, ids []string, mirror func(*Quest) []string) {
	for _, id := range ids {
		if p, ok := g.quests[id]; ok && !slices.Contains(mirror(p), self) {
			gained[id]++
		}
	}
}

// checkRoom refuses a change that would push any partner past MaxRelations.
// A partner already over the limit may keep its links but gain none.
func (g *Graph) checkRoom(gained linkGain) error {
	for _, id := range slices.Sorted(maps.Keys(gained)) {
		p, ok := g.quests[id]
		if !ok || gained[id] == 0 {
			continue
		}
		if have := p.RelationCount(); have+gained[id] > g.limits.MaxRelations {
			return oops.In("quest").
				Code(CodeTooManyRelations).
				With("quest_id", id).
				With("relations", have).
				With("max_relations", g.limits.MaxRelations).
				Wrap(ErrTooManyRelations)
		}
	}
	return nil
}

// checkRefs dedupes ids and verifies each exists and differs from self.
func (g *Graph) checkRefs(self string, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == self {
			return nil, oops.In("quest").Code(CodeSelfReference).With("quest_id", self).Wrap(ErrSelfReference)
		}
		if _, ok := g.quests[id]; !ok {
			return nil, errNotFound(id)
		}
		out = appendUnique(out, id)
	}
	return out, nil
}

// Ancestors returns the path from the root down to the parent of id.
func (g *Graph) Ancestors(id string) []*Quest {
	var path []*Quest
	visited := map[string]bool{id: true}
	q, ok := g.quests[id]
	for ok && q.ParentID != "" && !visited[q.ParentID] {
		visited[q.ParentID] = true
		q, ok = g.quests[q.ParentID]
		if ok {
			path = append(path, q)
		}
	}
	slices.Reverse(path)
	return path
}

// Descendants returns every quest below id in depth-first order.
func (g *Graph) Descendants(id string) []*Quest {
	var out []*Quest
	visited := map[string]bool{id: true}
	var walk func(string)
	walk = func(pid string) {
		for _, child := range g.Children(pid) {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			out = append(out, child)
			walk(child.ID)
		}
	}
	walk(id)
	return out
}

// Unlocked returns the quests blocked by completedID whose blockers are now
// all completed. Quests that are already completed are skipped.
func (g *Graph) Unlocked(completedID string) []*Quest {
	src, ok := g.quests[completedID]
	if !ok {
		return nil
	}
	var out []*Quest
	for _, bid := range src.BlocksIDs {
		b, ok := g.quests[bid]
		if !ok || b.Status == StatusCompleted {
			continue
		}
		free := true
		for _, blocker := range b.BlockedByIDs {
			if bq, ok := g.quests[blocker]; ok && bq.Status != StatusCompleted {
				free = false
				break
			}
		}
		if free {
			out = append(out, b)
		}
	}
	return out
}

// Reorder places id next to targetID among targetID's siblings, adopting the
// target's parent, and renumbers the siblings' SortOrder from zero.
func (g *Graph) Reorder(id, targetID string, before bool) error {
	if id == targetID {
		return nil
	}
	target, ok := g.quests[targetID]
	if !ok {
		return errNotFound(targetID)
	}
	if err := g.SetParent(id, target.ParentID); err != nil {
		return err
	}

	var siblings []*Quest
	if target.ParentID == "" {
		siblings = g.Roots()
	} else {
		siblings = g.Children(target.ParentID)
	}
	siblings = slices.DeleteFunc(siblings, func(q *Quest) bool { return q.ID == id })
	at := slices.IndexFunc(siblings, func(q *Quest) bool { return q.ID == targetID })
	if !before {
		at++
	}
	siblings = slices.Insert(siblings, at, g.quests[id])
	for i, s := range siblings {
		s.SortOrder = i
	}
	return nil
}

// NextSortOrder returns a sort order placing a new child after every
// existing child of parentID (or after every root when parentID is empty).
func (g *Graph) NextSortOrder(parentID string) int {
	var siblings []*Quest
	if parentID == "" {
		siblings = g.Roots()
	} else {
		siblings = g.Children(parentID)
	}
	if len(siblings) == 0 {
		return 0
	}
	return siblings[len(siblings)-1].SortOrder + 1
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		quests:       make(map[string]*Quest, len(g.quests)),
		roots:        slices.Clone(g.roots),
		limits:       g.limits,
		lastModified: g.lastModified,
		version:      g.version,
	}
	for id, q := range g.quests {
		c.quests[id] = q.Clone()
	}
	return c
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
