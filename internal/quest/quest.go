// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package quest contains the quest entity, the quest graph and its snapshot format.
package quest

import (
	"slices"
	"time"

	"github.com/holomush/questkeeper/internal/core"
)

// Reward item defaults applied when a field is omitted.
const (
	DefaultItemName  = "Unknown item"
	DefaultItemImage = "icons/svg/item-bag.svg"
)

// RewardItem is one entry of a quest's reward list.
type RewardItem struct {
	ItemID   string `json:"itemId,omitempty"`
	ItemRef  string `json:"itemUuid"`
	Name     string `json:"itemName"`
	Quantity int    `json:"quantity"`
	Image    string `json:"itemImg"`
}

// withDefaults fills omitted display fields.
func (r RewardItem) withDefaults() RewardItem {
	if r.Name == "" {
		r.Name = DefaultItemName
	}
	if r.Quantity < 1 {
		r.Quantity = 1
	}
	if r.Image == "" {
		r.Image = DefaultItemImage
	}
	return r
}

// Quest is a single narrative objective.
//
// ParentID and ChildrenIDs mirror each other and BlocksIDs and BlockedByIDs
// pair across entities. Both are maintained by Graph; code holding a bare
// Quest must not edit them directly.
type Quest struct {
	ID          string
	Title       string
	Description string
	Notes       string
	Location    string
	Status      Status

	ParentID     string
	ChildrenIDs  []string
	BlockedByIDs []string
	BlocksIDs    []string
	RelatedIDs   []string
	SortOrder    int

	Rewards     string
	RewardItems []RewardItem
	NPCs        []string

	CompletedBy        string
	CompletedAt        *time.Time
	RewardsDistributed bool

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

// New builds a quest from a partially populated record, filling every omitted
// field with its default. A fresh id is generated when rec.ID is empty.
func New(rec Record, by string, now time.Time) *Quest {
	q := FromRecord(rec)
	if q.ID == "" {
		q.ID = core.NewID(now)
	}
	if q.Status == "" {
		q.Status = StatusKnown
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = now
	}
	if q.CreatedBy == "" {
		q.CreatedBy = by
	}
	if q.UpdatedBy == "" {
		q.UpdatedBy = by
	}
	for i := range q.RewardItems {
		q.RewardItems[i] = q.RewardItems[i].withDefaults()
	}
	return q
}

// Touch refreshes the modification audit fields.
func (q *Quest) Touch(by string, now time.Time) {
	q.UpdatedAt = now
	q.UpdatedBy = by
}

// AddRewardItem appends a reward item, applying defaults.
func (q *Quest) AddRewardItem(item RewardItem, by string, now time.Time) {
	q.RewardItems = append(q.RewardItems, item.withDefaults())
	q.Touch(by, now)
}

// RemoveRewardItem removes the reward at index. An out-of-range index is a
// no-op and returns false.
func (q *Quest) RemoveRewardItem(index int, by string, now time.Time) bool {
	if index < 0 || index >= len(q.RewardItems) {
		return false
	}
	q.RewardItems = slices.Delete(q.RewardItems, index, index+1)
	q.Touch(by, now)
	return true
}

// MarkCompletedBy records the completing actor and forces the quest into
// the completed state, whatever its current status.
func (q *Quest) MarkCompletedBy(actorRef, by string, now time.Time) {
	q.CompletedBy = actorRef
	at := now
	q.CompletedAt = &at
	q.Status = StatusCompleted
	q.Touch(by, now)
}

// RelationCount is the number of edges counted against the relation limit.
func (q *Quest) RelationCount() int {
	return len(q.ChildrenIDs) + len(q.BlockedByIDs) + len(q.BlocksIDs) + len(q.RelatedIDs)
}

// HasChildren reports whether any quest lists this one as its parent.
func (q *Quest) HasChildren() bool {
	return len(q.ChildrenIDs) > 0
}

// Clone returns a deep copy.
func (q *Quest) Clone() *Quest {
	c := *q
	c.ChildrenIDs = slices.Clone(q.ChildrenIDs)
	c.BlockedByIDs = slices.Clone(q.BlockedByIDs)
	c.BlocksIDs = slices.Clone(q.BlocksIDs)
	c.RelatedIDs = slices.Clone(q.RelatedIDs)
	c.RewardItems = slices.Clone(q.RewardItems)
	c.NPCs = slices.Clone(q.NPCs)
	if q.CompletedAt != nil {
		at := *q.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
