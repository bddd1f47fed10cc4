// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"slices"
	"time"
)

// Patch is a typed partial update. A nil field is left untouched.
// ChildrenIDs, audit fields and the rewards latch are not patchable.
type Patch struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	Location     *string       `json:"location,omitempty"`
	Status       *Status       `json:"status,omitempty"`
	ParentID     *string       `json:"parentId,omitempty"`
	BlockedByIDs *[]string     `json:"blockedByIds,omitempty"`
	BlocksIDs    *[]string     `json:"blocksIds,omitempty"`
	RelatedIDs   *[]string     `json:"relatedIds,omitempty"`
	SortOrder    *int          `json:"sortOrder,omitempty"`
	Rewards      *string       `json:"rewards,omitempty"`
	RewardItems  *[]RewardItem `json:"rewardItems,omitempty"`
	NPCs         *[]string     `json:"npcs,omitempty"`
	CompletedBy  *string       `json:"completedBy,omitempty"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Fields names the fields the patch sets, in declaration order.
func (p Patch) Fields() []string {
	var fields []string
	set := func(name string, ok bool) {
		if ok {
			fields = append(fields, name)
		}
	}
	set("title", p.Title != nil)
	set("description", p.Description != nil)
	set("notes", p.Notes != nil)
	set("location", p.Location != nil)
	set("status", p.Status != nil)
	set("parentId", p.ParentID != nil)
	set("blockedByIds", p.BlockedByIDs != nil)
	set("blocksIds", p.BlocksIDs != nil)
	set("relatedIds", p.RelatedIDs != nil)
	set("sortOrder", p.SortOrder != nil)
	set("rewards", p.Rewards != nil)
	set("rewardItems", p.RewardItems != nil)
	set("npcs", p.NPCs != nil)
	set("completedBy", p.CompletedBy != nil)
	return fields
}

// applyFields copies the plain fields of p onto q. Graph links are handled
// by Graph.ApplyPatch.
func (p Patch) applyFields(q *Quest) {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Description != nil {
		q.Description = *p.Description
	}
	if p.Notes != nil {
		q.Notes = *p.Notes
	}
	if p.Location != nil {
		q.Location = *p.Location
	}
	if p.Status != nil {
		q.Status = *p.Status
	}
	if p.SortOrder != nil {
		q.SortOrder = *p.SortOrder
	}
	if p.Rewards != nil {
		q.Rewards = *p.Rewards
	}
	if p.RewardItems != nil {
		items := make([]RewardItem, len(*p.RewardItems))
		for i, item := range *p.RewardItems {
			items[i] = item.withDefaults()
		}
		q.RewardItems = items
	}
	if p.NPCs != nil {
		q.NPCs = slices.Clone(*p.NPCs)
	}
	if p.CompletedBy != nil {
		q.CompletedBy = *p.CompletedBy
	}
}

// ApplyPatch applies p to the quest id and touches it. The parent move runs
// its cycle check before any assignment; blocker lists are reconciled on
// both sides. On error the graph may be partially updated, so callers apply
// patches to a Clone and discard it on failure.
func (g *Graph) ApplyPatch(id string, p Patch, by string, now time.Time) error {
	q, ok := g.quests[id]
	if !ok {
		return errNotFound(id)
	}
	if p.ParentID != nil {
		if err := g.SetParent(id, *p.ParentID); err != nil {
			return err
		}
	}
	if p.BlockedByIDs != nil {
		if err := g.SetBlockedBy(id, *p.BlockedByIDs); err != nil {
			return err
		}
	}
	if p.BlocksIDs != nil {
		if err := g.SetBlocks(id, *p.BlocksIDs); err != nil {
			return err
		}
	}
	if p.RelatedIDs != nil {
		if err := g.SetRelated(id, *p.RelatedIDs); err != nil {
			return err
		}
	}
	p.applyFields(q)
	q.Touch(by, now)
	return nil
}
