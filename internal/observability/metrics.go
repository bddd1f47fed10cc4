// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultDenied   = "denied"
	ResultInvalid  = "invalid"
	ResultConflict = "conflict"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Sync directions.
const (
	DirectionSent       = "sent"
	DirectionReceived   = "received"
	DirectionSuppressed = "suppressed"
)

// Metrics holds the quest manager's Prometheus collectors.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	SyncMessagesTotal *prometheus.CounterVec
	ReloadsTotal      *prometheus.CounterVec
	DroppedTotal      prometheus.Counter
	Quests            *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questkeeper_operations_total",
				Help: "Quest manager operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		SyncMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questkeeper_sync_messages_total",
				Help: "Sync envelopes by kind and direction",
			},
			[]string{"kind", "direction"},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questkeeper_reloads_total",
				Help: "State reloads by reason and result",
			},
			[]string{"reason", "result"},
		),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "questkeeper_sync_dropped_total",
			Help: "Envelopes dropped because a subscriber buffer was full",
		}),
		Quests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "questkeeper_quests",
				Help: "Quests currently loaded, by status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(m.OperationsTotal, m.SyncMessagesTotal, m.ReloadsTotal, m.DroppedTotal, m.Quests)
	return m
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Operation records one manager operation. Nil receivers are ignored so
// callers need not check whether metrics are configured.
func (m *Metrics) Operation(op, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
}

// Sync records one envelope.
func (m *Metrics) Sync(kind, direction string) {
	if m == nil {
		return
	}
	m.SyncMessagesTotal.WithLabelValues(kind, direction).Inc()
}

// Reload records one state reload.
func (m *Metrics) Reload(reason, result string) {
	if m == nil {
		return
	}
	m.ReloadsTotal.WithLabelValues(reason, result).Inc()
}

// Dropped records one envelope lost to a full buffer.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// SetQuestCounts replaces the per-status quest gauge.
func (m *Metrics) SetQuestCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.Quests.Reset()
	for status, n := range counts {
		m.Quests.WithLabelValues(status).Set(float64(n))
	}
}
