// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"fmt"
	"slices"
)

// Problem is one integrity violation found by Verify.
type Problem struct {
	QuestID string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.QuestID, p.Message)
}

// Verify checks the structural invariants: forest shape, the children mirror,
// blocks pairing and dangling references. Graphs built through the mutators
// always verify clean; snapshots written by other tools may not.
func (g *Graph) Verify() []Problem {
	var problems []Problem
	report := func(id, format string, args ...any) {
		problems = append(problems, Problem{QuestID: id, Message: fmt.Sprintf(format, args...)})
	}

	for _, q := range g.All() {
		if q.ParentID != "" {
			parent, ok := g.quests[q.ParentID]
			switch {
			case !ok:
				report(q.ID, "parent %s does not exist", q.ParentID)
			case !slices.Contains(parent.ChildrenIDs, q.ID):
				report(q.ID, "parent %s does not list it as a child", q.ParentID)
			}
			if g.WouldCreateCycle(q.ID, q.ParentID) {
				report(q.ID, "parent chain contains a cycle")
			}
		} else if !slices.Contains(g.roots, q.ID) {
			report(q.ID, "parentless quest missing from root list")
		}

		for _, cid := range q.ChildrenIDs {
			child, ok := g.quests[cid]
			switch {
			case !ok:
				report(q.ID, "child %s does not exist", cid)
			case child.ParentID != q.ID:
				report(q.ID, "child %s has parent %q", cid, child.ParentID)
			}
		}
		for _, bid := range q.BlocksIDs {
			b, ok := g.quests[bid]
			switch {
			case !ok:
				report(q.ID, "blocked quest %s does not exist", bid)
			case !slices.Contains(b.BlockedByIDs, q.ID):
				report(q.ID, "blocks %s but %s does not list it as a blocker", bid, bid)
			}
		}
		for _, bid := range q.BlockedByIDs {
			b, ok := g.quests[bid]
			switch {
			case !ok:
				report(q.ID, "blocker %s does not exist", bid)
			case !slices.Contains(b.BlocksIDs, q.ID):
				report(q.ID, "blocked by %s but %s does not list it", bid, bid)
			}
		}
		for _, rid := range q.RelatedIDs {
			if _, ok := g.quests[rid]; !ok {
				report(q.ID, "related quest %s does not exist", rid)
			}
		}
	}
	for _, rid := range g.roots {
		if q, ok := g.quests[rid]; ok && q.ParentID != "" {
			report(rid, "listed as root but has parent %s", q.ParentID)
		}
	}
	return problems
}

// Repair rebuilds the derived structures from the authoritative links:
// ChildrenIDs from ParentID, and the blocks pairing as the union of both
// sides. Dangling references are dropped and a parent link that closes a
// cycle is cut. It returns the number of changes made.
func (g *Graph) Repair() int {
	changes := 0
	for _, q := range g.All() {
		if q.ParentID == "" {
			continue
		}
		_, ok := g.quests[q.ParentID]
		if !ok || g.WouldCreateCycle(q.ID, q.ParentID) {
			q.ParentID = ""
			changes++
		}
	}

	for _, q := range g.quests {
		before := len(q.ChildrenIDs)
		q.ChildrenIDs = slices.DeleteFunc(q.ChildrenIDs, func(cid string) bool {
			c, ok := g.quests[cid]
			return !ok || c.ParentID != q.ID
		})
		changes += before - len(q.ChildrenIDs)

		missing := func(id string) bool {
			_, ok := g.quests[id]
			return !ok
		}
		n := len(q.BlocksIDs) + len(q.BlockedByIDs) + len(q.RelatedIDs)
		q.BlocksIDs = slices.DeleteFunc(q.BlocksIDs, missing)
		q.BlockedByIDs = slices.DeleteFunc(q.BlockedByIDs, missing)
		q.RelatedIDs = slices.DeleteFunc(q.RelatedIDs, missing)
		changes += n - len(q.BlocksIDs) - len(q.BlockedByIDs) - len(q.RelatedIDs)
	}

	for _, q := range g.All() {
		if q.ParentID != "" {
			parent := g.quests[q.ParentID]
			if !slices.Contains(parent.ChildrenIDs, q.ID) {
				parent.ChildrenIDs = append(parent.ChildrenIDs, q.ID)
				changes++
			}
		}
		for _, bid := range q.BlocksIDs {
			b := g.quests[bid]
			if !slices.Contains(b.BlockedByIDs, q.ID) {
				b.BlockedByIDs = append(b.BlockedByIDs, q.ID)
				changes++
			}
		}
		for _, bid := range q.BlockedByIDs {
			b := g.quests[bid]
			if !slices.Contains(b.BlocksIDs, q.ID) {
				b.BlocksIDs = append(b.BlocksIDs, q.ID)
				changes++
			}
		}
	}

	roots := slices.DeleteFunc(slices.Clone(g.roots), func(id string) bool {
		q, ok := g.quests[id]
		return !ok || q.ParentID != ""
	})
	for _, q := range g.All() {
		if q.ParentID == "" && !slices.Contains(roots, q.ID) {
			roots = append(roots, q.ID)
		}
	}
	if !slices.Equal(roots, g.roots) {
		g.roots = roots
		changes++
	}
	return changes
}
