// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"slices"
	"time"
)

// Record is the serialized form of a Quest. Every field is optional on input;
// missing values decode to their zero value and are defaulted by New.
type Record struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	ParentID     string       `json:"parentId,omitempty"`
	ChildrenIDs  []string     `json:"childrenIds"`
	BlockedByIDs []string     `json:"blockedByIds"`
	BlocksIDs    []string     `json:"blocksIds"`
	RelatedIDs   []string     `json:"relatedIds"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	CreatedBy    string       `json:"createdBy"`
	UpdatedBy    string       `json:"updatedBy"`
	Notes        string       `json:"notes"`
	Rewards      string       `json:"rewards"`
	Location     string       `json:"location"`
	NPCs         []string     `json:"npcs"`
	SortOrder    int          `json:"sortOrder"`
	RewardItems  []RewardItem `json:"rewardItems"`
	CompletedBy  string       `json:"completedBy,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`

	RewardsDistributed bool `json:"rewardsDistributed"`
}

// ToRecord serializes the quest. Slices are always non-nil so the encoded
// document carries [] rather than null.
func (q *Quest) ToRecord() Record {
	rec := Record{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		Status:             q.Status,
		ParentID:           q.ParentID,
		ChildrenIDs:        cloneOrEmpty(q.ChildrenIDs),
		BlockedByIDs:       cloneOrEmpty(q.BlockedByIDs),
		BlocksIDs:          cloneOrEmpty(q.BlocksIDs),
		RelatedIDs:         cloneOrEmpty(q.RelatedIDs),
		CreatedAt:          q.CreatedAt,
		UpdatedAt:          q.UpdatedAt,
		CreatedBy:          q.CreatedBy,
		UpdatedBy:          q.UpdatedBy,
		Notes:              q.Notes,
		Rewards:            q.Rewards,
		Location:           q.Location,
		NPCs:               cloneOrEmpty(q.NPCs),
		SortOrder:          q.SortOrder,
		RewardItems:        cloneOrEmpty(q.RewardItems),
		CompletedBy:        q.CompletedBy,
		RewardsDistributed: q.RewardsDistributed,
	}
	if q.CompletedAt != nil {
		at := *q.CompletedAt
		rec.CompletedAt = &at
	}
	return rec
}

// FromRecord rebuilds a quest from its serialized form without applying
// defaults. It is the exact inverse of ToRecord.
func FromRecord(rec Record) *Quest {
	q := &Quest{
		ID:                 rec.ID,
		Title:              rec.Title,
		Description:        rec.Description,
		Notes:              rec.Notes,
		Location:           rec.Location,
		Status:             rec.Status,
		ParentID:           rec.ParentID,
		ChildrenIDs:        cloneOrEmpty(rec.ChildrenIDs),
		BlockedByIDs:       cloneOrEmpty(rec.BlockedByIDs),
		BlocksIDs:          cloneOrEmpty(rec.BlocksIDs),
		RelatedIDs:         cloneOrEmpty(rec.RelatedIDs),
		SortOrder:          rec.SortOrder,
		Rewards:            rec.Rewards,
		RewardItems:        cloneOrEmpty(rec.RewardItems),
		NPCs:               cloneOrEmpty(rec.NPCs),
		CompletedBy:        rec.CompletedBy,
		RewardsDistributed: rec.RewardsDistributed,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		CreatedBy:          rec.CreatedBy,
		UpdatedBy:          rec.UpdatedBy,
	}
	if rec.CompletedAt != nil {
		at := *rec.CompletedAt
		q.CompletedAt = &at
	}
	return q
}

func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}
