// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"cmp"
	"slices"
	"time"
)

// Snapshot format constants.
const (
	SchemaVersion = 1
	FormatVersion = "0.1.0"
)

// Metadata describes a snapshot.
type Metadata struct {
	LastModified time.Time `json:"lastModified"`
	QuestCount   int       `json:"questCount"`
	Version      string    `json:"version"`
}

// Snapshot is the whole graph serialized as one document.
type Snapshot struct {
	SchemaVersion int               `json:"schemaVersion"`
	Quests        map[string]Record `json:"quests"`
	RootQuestIDs  []string          `json:"rootQuestIds"`
	Metadata      Metadata          `json:"metadata"`
}

// ToSnapshot serializes the graph.
func (g *Graph) ToSnapshot() Snapshot {
	quests := make(map[string]Record, len(g.quests))
	for id, q := range g.quests {
		quests[id] = q.ToRecord()
	}
	return Snapshot{
		SchemaVersion: SchemaVersion,
		Quests:        quests,
		RootQuestIDs:  slices.Clone(g.roots),
		Metadata: Metadata{
			LastModified: g.lastModified,
			QuestCount:   len(g.quests),
			Version:      g.version,
		},
	}
}

// FromSnapshot rebuilds a graph. Every field of s is optional: a zero
// Snapshot yields an empty graph. The root list keeps the stored order,
// drops ids that are unknown or have a parent, and appends parentless
// quests the stored list missed.
func FromSnapshot(s Snapshot, limits Limits) *Graph {
	g := NewGraph(limits)
	g.lastModified = s.Metadata.LastModified
	if s.Metadata.Version != "" {
		g.version = s.Metadata.Version
	}

	for key, rec := range s.Quests {
		if rec.ID == "" {
			rec.ID = key
		}
		g.quests[rec.ID] = FromRecord(rec)
	}

	seen := make(map[string]bool, len(s.RootQuestIDs))
	for _, id := range s.RootQuestIDs {
		q, ok := g.quests[id]
		if !ok || q.ParentID != "" || seen[id] {
			continue
		}
		seen[id] = true
		g.roots = append(g.roots, id)
	}
	var missing []*Quest
	for id, q := range g.quests {
		if q.ParentID == "" && !seen[id] {
			missing = append(missing, q)
		}
	}
	slices.SortFunc(missing, func(a, b *Quest) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.ID, b.ID))
	})
	for _, q := range missing {
		g.roots = append(g.roots, q.ID)
	}
	return g
}
