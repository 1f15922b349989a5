// Package metrics collects and exposes Prometheus metrics for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the narrow interface the store, pipeline and reconciler record
// through. A nil Recorder is valid and drops every observation.
type Recorder interface {
	RecordPatch(kind, op string)
	RecordPatchMiss(kind, op string)
	RecordMutation(command, outcome string)
	RecordPushEvent(channel, disposition string)
	RecordUndoDepth(depth int)
}

// Collector implements Recorder on top of a Prometheus registry.
type Collector struct {
	patches    *prometheus.CounterVec
	patchMiss  *prometheus.CounterVec
	mutations  *prometheus.CounterVec
	pushEvents *prometheus.CounterVec
	undoDepth  prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotsync_patches_applied_total",
			Help: "Patches applied to normalized collections, by entity kind and operation.",
		}, []string{"kind", "op"}),
		patchMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotsync_patch_misses_total",
			Help: "Replace or remove patches that referenced an absent entity id.",
		}, []string{"kind", "op"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotsync_mutations_total",
			Help: "Mutation commands by command name and terminal outcome.",
		}, []string{"command", "outcome"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotsync_push_events_total",
			Help: "Inbound push events by channel and disposition (applied or discarded).",
		}, []string{"channel", "disposition"}),
		undoDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slotsync_undo_ledger_depth",
			Help: "Current number of entries held by the undo ledger.",
		}),
	}

	reg.MustRegister(
		c.patches,
		c.patchMiss,
		c.mutations,
		c.pushEvents,
		c.undoDepth,
	)

	return c
}

// RecordPatch counts a successfully applied patch operation.
func (c *Collector) RecordPatch(kind, op string) {
	c.patches.WithLabelValues(kind, op).Inc()
}

// RecordPatchMiss counts a patch whose target id was absent.
func (c *Collector) RecordPatchMiss(kind, op string) {
	c.patchMiss.WithLabelValues(kind, op).Inc()
}

// RecordMutation counts a mutation command reaching a terminal state.
func (c *Collector) RecordMutation(command, outcome string) {
	c.mutations.WithLabelValues(command, outcome).Inc()
}

// RecordPushEvent counts an inbound push event.
func (c *Collector) RecordPushEvent(channel, disposition string) {
	c.pushEvents.WithLabelValues(channel, disposition).Inc()
}

// RecordUndoDepth tracks the ledger depth after a push or pop.
func (c *Collector) RecordUndoDepth(depth int) {
	c.undoDepth.Set(float64(depth))
}
