// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"context"
	"fmt"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/inventory"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/syncer"
)

// Distribution reports what DistributeRewards handed out.
type Distribution struct {
	ActorRef string
	Granted  []inventory.Grant
	// Skipped lists reward item refs the inventory could not resolve.
	Skipped []string
}

// AddRewardItem appends a reward to the quest.
func (m *Manager) AddRewardItem(ctx context.Context, id string, item quest.RewardItem, userID string) (_ *quest.Quest, err error) {
	ctx, done := m.begin(ctx, "reward_add", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapEdit); err != nil {
		return nil, err
	}
	if _, ok := m.graph.Get(id); !ok {
		return nil, errNotFound(id)
	}
	staged := m.graph.Clone()
	q, _ := staged.Get(id)
	q.AddRewardItem(item, userID, m.clock.Now())
	if verrs := q.Validate(m.limits); len(verrs) > 0 {
		return nil, errInvalid(verrs)
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	return q.Clone(), nil
}

// RemoveRewardItem drops the reward at index. An index out of range changes
// nothing and reports false.
func (m *Manager) RemoveRewardItem(ctx context.Context, id string, index int, userID string) (_ bool, err error) {
	ctx, done := m.begin(ctx, "reward_remove", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapEdit); err != nil {
		return false, err
	}
	if _, ok := m.graph.Get(id); !ok {
		return false, errNotFound(id)
	}
	staged := m.graph.Clone()
	q, _ := staged.Get(id)
	if !q.RemoveRewardItem(index, userID, m.clock.Now()) {
		return false, nil
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return false, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	return true, nil
}

// DistributeRewards grants every reward item of a completed quest to the
// actor who completed it. Rewards are handed out at most once.
//
// Items the inventory cannot resolve are skipped with a warning. A failed
// grant aborts the distribution and leaves the quest eligible; grants made
// before the failure are kept by the inventory.
func (m *Manager) DistributeRewards(ctx context.Context, id, userID string) (_ *Distribution, err error) {
	ctx, done := m.begin(ctx, "reward_distribute", userID)
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
	if cur.CompletedBy == "" {
		return nil, errRewards(id, fmt.Sprintf("Quest %q has not been completed by anyone", cur.Title))
	}
	if cur.RewardsDistributed {
		return nil, errRewards(id, fmt.Sprintf("Rewards for quest %q were already distributed", cur.Title))
	}
	if m.inventory == nil {
		return nil, classifyExternal(errNoInventory, "No inventory is configured")
	}

	dist := &Distribution{ActorRef: cur.CompletedBy}
	for _, reward := range cur.RewardItems {
		item, err := m.inventory.ResolveItem(ctx, reward.ItemRef)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping unresolved reward item",
				"quest_id", id, "item", reward.ItemRef, "error", err)
			m.warn(ctx, notify.KindRewardsDistributed, id, fmt.Sprintf("Item %q not found, skipped", reward.Name))
			dist.Skipped = append(dist.Skipped, reward.ItemRef)
			continue
		}
		grant, err := m.inventory.GrantItemCopy(ctx, cur.CompletedBy, item, reward.Quantity)
		if err != nil {
			return nil, classifyExternal(err, fmt.Sprintf("Failed to give %q to %s", reward.Name, cur.CompletedBy))
		}
		dist.Granted = append(dist.Granted, *grant)
	}
	if saver, ok := m.inventory.(interface{ Save() error }); ok {
		if err := saver.Save(); err != nil {
			return nil, classifyExternal(err, "Failed to save the inventory")
		}
	}

	staged := m.graph.Clone()
	q, _ := staged.Get(id)
	q.RewardsDistributed = true
	q.Touch(userID, m.clock.Now())
	if err := m.commitGraph(ctx, staged); err != nil {
		return nil, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, syncer.QuestPayload{Quest: q.ToRecord()})
	m.inform(ctx, notify.KindRewardsDistributed, id,
		fmt.Sprintf("%s received %d reward(s)", cur.CompletedBy, len(dist.Granted)))
	return dist, nil
}
