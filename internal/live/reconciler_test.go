package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/testfixtures"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
)

func referenceWindow() timegrid.Window {
	return timegrid.WeekOf(testfixtures.ReferenceTime())
}

func subscribedReconciler(t *testing.T) (*Reconciler, *store.Store, store.Key) {
	t.Helper()
	st := store.New(nil, nil)
	key := store.KeyFor(testfixtures.EmployeeID, referenceWindow())
	st.Slots.GetOrCreate(key)
	st.Sessions.GetOrCreate(key)

	r := NewReconciler(st, nil, nil)
	r.SetWindow(testfixtures.EmployeeID, referenceWindow())
	return r, st, key
}

func slotEvent(t *testing.T, action transport.Action, slot domain.Slot) transport.PushEvent {
	t.Helper()
	data, err := json.Marshal(slot)
	if err != nil {
		t.Fatalf("marshal slot: %v", err)
	}
	return transport.PushEvent{Action: action, Data: data}
}

func sessionEvent(t *testing.T, action transport.Action, session domain.Session) transport.PushEvent {
	t.Helper()
	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return transport.PushEvent{Action: action, Data: data}
}

func TestCreateEventInsideWindowAddsEntity(t *testing.T) {
	r, st, key := subscribedReconciler(t)
	slot := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))

	r.HandleSlotEvent(slotEvent(t, transport.ActionCreate, slot))

	snap, _ := st.Slots.Read(key)
	if _, ok := snap.Get(slot.ID); !ok {
		t.Fatalf("expected slot added")
	}
}

func TestDeleteEventOutsideWindowIsDiscarded(t *testing.T) {
	r, st, key := subscribedReconciler(t)
	inside := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))
	st.Slots.Apply(key, []store.Patch[domain.Slot]{store.Add(inside)})

	outside := inside
	outside.StartTime = time.Date(2025, 3, 12, 11, 0, 0, 0, time.UTC)
	r.HandleSlotEvent(slotEvent(t, transport.ActionDelete, outside))

	snap, _ := st.Slots.Read(key)
	if _, ok := snap.Get(inside.ID); !ok {
		t.Fatalf("event outside the window must not touch the cache")
	}

	// The same delete dated inside the window removes the entity.
	r.HandleSlotEvent(slotEvent(t, transport.ActionDelete, inside))
	snap, _ = st.Slots.Read(key)
	if _, ok := snap.Get(inside.ID); ok {
		t.Fatalf("expected entity removed by in-window delete")
	}
}

func TestDuplicateCreateEventsStayIdempotent(t *testing.T) {
	r, st, key := subscribedReconciler(t)
	session := domain.Session{
		ID:         "sess-1",
		SlotID:     "slot-1",
		EmployeeID: testfixtures.EmployeeID,
		CustomerID: "cust-1",
		StartTime:  time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC),
	}

	ev := sessionEvent(t, transport.ActionCreate, session)
	r.HandleSessionEvent(ev)
	r.HandleSessionEvent(ev)

	snap, _ := st.Sessions.Read(key)
	if len(snap.ByID) != 1 {
		t.Fatalf("expected single entry, got %d", len(snap.ByID))
	}
	count := 0
	for _, id := range snap.IDs {
		if id == "sess-1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected id listed once, got %d", count)
	}
}

func TestEventsForOtherEmployeesAreDiscarded(t *testing.T) {
	r, st, key := subscribedReconciler(t)
	foreign := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))
	foreign.EmployeeID = "00000000-0000-4000-8000-000000000999"

	r.HandleSlotEvent(slotEvent(t, transport.ActionCreate, foreign))

	snap, _ := st.Slots.Read(key)
	if snap.Len() != 0 {
		t.Fatalf("foreign employee event must be discarded")
	}
}

func TestEventsBeforeSubscriptionAreDiscarded(t *testing.T) {
	st := store.New(nil, nil)
	key := store.KeyFor(testfixtures.EmployeeID, referenceWindow())
	st.Slots.GetOrCreate(key)
	r := NewReconciler(st, nil, nil)

	slot := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))
	r.HandleSlotEvent(slotEvent(t, transport.ActionCreate, slot))

	snap, _ := st.Slots.Read(key)
	if snap.Len() != 0 {
		t.Fatalf("events before SetWindow must be discarded")
	}
}

func TestUpdateEventReplacesInPlace(t *testing.T) {
	r, st, key := subscribedReconciler(t)
	slot := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))
	st.Slots.Apply(key, []store.Patch[domain.Slot]{store.Add(slot)})

	updated := slot
	updated.Recurring = true
	r.HandleSlotEvent(slotEvent(t, transport.ActionUpdate, updated))

	snap, _ := st.Slots.Read(key)
	got, _ := snap.Get(slot.ID)
	if !got.Recurring {
		t.Fatalf("expected recurring flag updated")
	}
	if snap.Len() != 1 {
		t.Fatalf("update must not grow the collection")
	}
}

func TestRunConsumesChannelsInDeliveryOrder(t *testing.T) {
	r, st, key := subscribedReconciler(t)

	slot := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 11, 0, 0, 0, time.UTC)))
	updated := slot
	updated.Duration = 60

	slotCh := make(chan transport.PushEvent, 3)
	slotCh <- slotEvent(t, transport.ActionCreate, slot)
	slotCh <- slotEvent(t, transport.ActionUpdate, updated)
	slotCh <- slotEvent(t, transport.ActionDelete, slot)
	close(slotCh)

	sessionCh := make(chan transport.PushEvent)
	close(sessionCh)

	r.Run(context.Background(), slotCh, sessionCh)

	snap, _ := st.Slots.Read(key)
	if snap.Len() != 0 {
		t.Fatalf("create, update, delete in order must leave an empty collection, got %d", snap.Len())
	}
}
