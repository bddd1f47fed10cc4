// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Operation("deleteQuest", ResultDenied)
	m.Operation("deleteQuest", ResultDenied)
	m.Sync("requestSync", DirectionReceived)
	m.Reload("questUpdated", ResultOK)
	m.Dropped()

	assert.InDelta(t, 2, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("deleteQuest", ResultDenied)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SyncMessagesTotal.WithLabelValues("requestSync", DirectionReceived)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReloadsTotal.WithLabelValues("questUpdated", ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedTotal), 0)
}

func TestMetrics_QuestCountsReplace(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetQuestCounts(map[string]int{"active": 3, "known": 1})
	m.SetQuestCounts(map[string]int{"completed": 4})

	assert.Equal(t, 1, testutil.CollectAndCount(m.Quests))
	assert.InDelta(t, 4, testutil.ToFloat64(m.Quests.WithLabelValues("completed")), 0)
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Operation("x", ResultOK)
		m.Sync("x", DirectionSent)
		m.Reload("x", ResultOK)
		m.Dropped()
		m.SetQuestCounts(map[string]int{"active": 1})
	})
}
