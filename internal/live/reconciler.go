// Package live merges out-of-band push events into the normalized cache.
// Events are applied in delivery order, filtered to the currently viewed
// date window, and expressed in the same patch vocabulary the mutation
// pipeline uses, so the two sources stay idempotent against each other.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/metrics"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
)

// Reconciler consumes push events and patches the cache entry for the
// window the UI is currently subscribed to.
type Reconciler struct {
	store    *store.Store
	logger   *slog.Logger
	recorder metrics.Recorder

	mu         sync.Mutex
	key        store.Key
	window     timegrid.Window
	subscribed bool
}

// NewReconciler constructs a reconciler with no subscribed window; every
// event is discarded until SetWindow is called.
func NewReconciler(st *store.Store, logger *slog.Logger, recorder metrics.Recorder) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, logger: logger, recorder: recorder}
}

// SetWindow points the reconciler at the employee and date window the UI is
// viewing.
func (r *Reconciler) SetWindow(employeeID string, window timegrid.Window) {
	r.mu.Lock()
	r.key = store.KeyFor(employeeID, window)
	r.window = window
	r.subscribed = true
	r.mu.Unlock()
}

// ClearWindow detaches the reconciler; subsequent events are discarded.
func (r *Reconciler) ClearWindow() {
	r.mu.Lock()
	r.subscribed = false
	r.mu.Unlock()
}

// Run consumes both event channels until they close or ctx is cancelled.
// Each channel's delivery order is preserved; no reordering or coalescing.
func (r *Reconciler) Run(ctx context.Context, slotEvents, sessionEvents <-chan transport.PushEvent) {
	for slotEvents != nil || sessionEvents != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-slotEvents:
			if !ok {
				slotEvents = nil
				continue
			}
			r.HandleSlotEvent(ev)
		case ev, ok := <-sessionEvents:
			if !ok {
				sessionEvents = nil
				continue
			}
			r.HandleSessionEvent(ev)
		}
	}
}

// HandleSlotEvent applies one event from the slots channel.
func (r *Reconciler) HandleSlotEvent(ev transport.PushEvent) {
	var slot domain.Slot
	if err := json.Unmarshal(ev.Data, &slot); err != nil || slot.ID == "" {
		r.discard(transport.ChannelSlots, "malformed")
		r.logger.Warn("dropping malformed slot event", "action", string(ev.Action), "error", err)
		return
	}

	key, ok := r.admit(transport.ChannelSlots, slot.EmployeeID, slot.OccursAt())
	if !ok {
		return
	}

	patch, ok := translate(ev.Action, slot.ID, slot)
	if !ok {
		r.discard(transport.ChannelSlots, "unknown_action")
		r.logger.Warn("dropping slot event with unknown action", "action", string(ev.Action))
		return
	}
	r.store.Slots.Apply(key, []store.Patch[domain.Slot]{patch})
	r.applied(transport.ChannelSlots)
}

// HandleSessionEvent applies one event from the sessions channel.
func (r *Reconciler) HandleSessionEvent(ev transport.PushEvent) {
	var session domain.Session
	if err := json.Unmarshal(ev.Data, &session); err != nil || session.ID == "" {
		r.discard(transport.ChannelSessions, "malformed")
		r.logger.Warn("dropping malformed session event", "action", string(ev.Action), "error", err)
		return
	}

	key, ok := r.admit(transport.ChannelSessions, session.EmployeeID, session.OccursAt())
	if !ok {
		return
	}

	patch, ok := translate(ev.Action, session.ID, session)
	if !ok {
		r.discard(transport.ChannelSessions, "unknown_action")
		r.logger.Warn("dropping session event with unknown action", "action", string(ev.Action))
		return
	}
	r.store.Sessions.Apply(key, []store.Patch[domain.Session]{patch})
	r.applied(transport.ChannelSessions)
}

// admit filters an event to the subscribed window. Events outside the
// window, for other employees, or arriving before any window is set are
// deliberately dropped, not errors.
func (r *Reconciler) admit(channel, employeeID string, occursAt time.Time) (store.Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.subscribed || employeeID != r.key.EmployeeID || !r.window.Contains(occursAt) {
		r.discard(channel, "outside_window")
		return store.Key{}, false
	}
	return r.key, true
}

func translate[T domain.Entity](action transport.Action, id string, entity T) (store.Patch[T], bool) {
	switch action {
	case transport.ActionCreate:
		return store.Add(entity), true
	case transport.ActionUpdate:
		return store.Replace(entity), true
	case transport.ActionDelete:
		return store.Remove[T](id), true
	default:
		return store.Patch[T]{}, false
	}
}

func (r *Reconciler) applied(channel string) {
	if r.recorder != nil {
		r.recorder.RecordPushEvent(channel, "applied")
	}
}

func (r *Reconciler) discard(channel, reason string) {
	if r.recorder != nil {
		r.recorder.RecordPushEvent(channel, "discarded_"+reason)
	}
}
