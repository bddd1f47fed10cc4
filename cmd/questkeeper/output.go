// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/manager"
	"github.com/holomush/questkeeper/internal/quest"
)

// printer writes human-readable output. Write errors are sticky and
// reported by err.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) field(label, value string) {
	if value != "" {
		p.printf("  %-12s %s\n", label+":", value)
	}
}

func (p *printer) list(label string, values []string) {
	if len(values) > 0 {
		p.field(label, strings.Join(values, ", "))
	}
}

func (p *printer) quest(q *quest.Quest) {
	p.printf("%s  %s [%s]\n", q.ID, q.Title, q.Status)
	p.field("Parent", q.ParentID)
	p.field("Description", q.Description)
	p.field("Location", q.Location)
	p.list("NPCs", q.NPCs)
	p.list("Sub-quests", q.ChildrenIDs)
	p.list("Blocked by", q.BlockedByIDs)
	p.list("Blocks", q.BlocksIDs)
	p.list("Related", q.RelatedIDs)
	p.field("Rewards", q.Rewards)
	for i, item := range q.RewardItems {
		p.printf("  reward %d:    %dx %s (%s)\n", i, item.Quantity, item.Name, item.ItemRef)
	}
	if q.CompletedBy != "" {
		done := q.CompletedBy
		if q.CompletedAt != nil {
			done += " at " + q.CompletedAt.Format(time.RFC3339)
		}
		if q.RewardsDistributed {
			done += " (rewards distributed)"
		}
		p.field("Completed", done)
	}
	p.field("Notes", q.Notes)
	p.field("Updated", fmt.Sprintf("%s by %s", q.UpdatedAt.Format(time.RFC3339), q.UpdatedBy))
}

func (p *printer) tree(nodes []manager.TreeNode, depth int) {
	for _, n := range nodes {
		p.printf("%s- %s [%s] %s\n", strings.Repeat("  ", depth), n.Quest.Title, n.Quest.Status, n.Quest.ID)
		p.tree(n.Children, depth+1)
	}
}

func (p *printer) buckets(b manager.Buckets) {
	for _, status := range quest.Statuses() {
		qs := b[status]
		p.printf("%s (%d)\n", status, len(qs))
		for _, q := range qs {
			p.printf("  %s  %s\n", q.ID, q.Title)
		}
	}
}

func (p *printer) permissions(set access.Set) {
	for _, c := range access.Capabilities() {
		mark := "no"
		if set[c] {
			mark = "yes"
		}
		p.printf("  %-13s %s\n", c, mark)
	}
}

func (p *printer) policy(rec access.PolicyRecord) {
	p.printf("default\n")
	p.permissions(rec.DefaultPermissions)
	for _, id := range slices.Sorted(maps.Keys(rec.UserPermissions)) {
		p.printf("%s\n", id)
		set := rec.UserPermissions[id]
		for _, c := range access.Capabilities() {
			if v, ok := set[c]; ok {
				p.printf("  %-13s %t\n", c, v)
			}
		}
	}
}
