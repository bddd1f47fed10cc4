// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatch_Fields(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())

	p := Patch{Title: Ptr("New"), Status: Ptr(StatusActive), BlocksIDs: &[]string{}}
	assert.False(t, p.IsEmpty())
	assert.Equal(t, []string{"title", "status", "blocksIds"}, p.Fields())
}

func TestPatch_JSONOmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(Patch{Title: Ptr("x"), SortOrder: Ptr(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x","sortOrder":0}`, string(data))
}

func TestGraph_ApplyPatch(t *testing.T) {
	g := NewGraph(DefaultLimits())
	addQuest(t, g, "a", "", 0)
	addQuest(t, g, "b", "", 1)
	addQuest(t, g, "c", "", 2)
	later := testNow.Add(time.Hour)

	err := g.ApplyPatch("b", Patch{
		Title:        Ptr("Renamed"),
		Status:       Ptr(StatusActive),
		ParentID:     Ptr("a"),
		BlockedByIDs: &[]string{"c"},
		RelatedIDs:   &[]string{"a"},
		RewardItems:  &[]RewardItem{{ItemRef: "Item.x"}},
		NPCs:         &[]string{"Orla"},
	}, "editor", later)
	require.NoError(t, err)

	b, _ := g.Get("b")
	assert.Equal(t, "Renamed", b.Title)
	assert.Equal(t, StatusActive, b.Status)
	assert.Equal(t, "a", b.ParentID)
	assert.Equal(t, []string{"c"}, b.BlockedByIDs)
	assert.Equal(t, []string{"a"}, b.RelatedIDs)
	assert.Equal(t, DefaultItemName, b.RewardItems[0].Name)
	assert.Equal(t, []string{"Orla"}, b.NPCs)
	assert.Equal(t, "editor", b.UpdatedBy)
	assert.Equal(t, later, b.UpdatedAt)
	assert.Empty(t, g.Verify())

	t.Run("circular parent rejected before assignment", func(t *testing.T) {
		err := g.ApplyPatch("a", Patch{ParentID: Ptr("b"), Title: Ptr("ignored")}, "editor", later)
		require.ErrorIs(t, err, ErrCircularDependency)
		a, _ := g.Get("a")
		assert.Empty(t, a.ParentID)
		assert.Equal(t, "Quest a", a.Title)
	})

	t.Run("unknown quest", func(t *testing.T) {
		err := g.ApplyPatch("ghost", Patch{Title: Ptr("x")}, "editor", later)
		require.ErrorIs(t, err, ErrNotFound)
	})
}
