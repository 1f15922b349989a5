package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/slotsync/internal/command"
	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/notify"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/testfixtures"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
	"github.com/example/slotsync/internal/undo"
)

const slotID = "7f3e2d1c-0b9a-4817-a6e5-d4c3b2a1f0e9"

func weekKey() store.Key {
	return store.KeyFor(testfixtures.EmployeeID, timegrid.WeekOf(testfixtures.ReferenceTime()))
}

func slotPayload(t *testing.T, slot domain.Slot) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(slot)
	if err != nil {
		t.Fatalf("marshal slot: %v", err)
	}
	return data
}

func slotsPayload(t *testing.T, slots []domain.Slot) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(slots)
	if err != nil {
		t.Fatalf("marshal slots: %v", err)
	}
	return data
}

func newPipeline(t *testing.T, caller transport.Caller) (*Pipeline, *store.Store, *undo.Ledger, *notify.Recorder) {
	t.Helper()
	st := store.New(nil, nil)
	ledger := undo.NewLedger(10, nil)
	recorder := &notify.Recorder{}
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	p := NewPipeline(st, caller, ledger, recorder, clock.NowFunc(), nil, nil)
	return p, st, ledger, recorder
}

func addSlotCommand() command.AddSlot {
	return command.AddSlot{
		EmployeeID: testfixtures.EmployeeID,
		Date:       "2025-03-05",
		Hour:       9,
		Minute:     0,
		Duration:   30,
		Type:       domain.SlotAvailable,
	}
}

func TestDispatchAddSlotPatchesWindowAndRecordsUndo(t *testing.T) {
	created := testfixtures.NewSlot(
		testfixtures.WithSlotID("s1"),
		testfixtures.WithStart(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)),
	)
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{
			Message: "Recurring slot has been added.",
			Data:    slotPayload(t, created),
		},
	})
	p, st, ledger, notices := newPipeline(t, caller)

	key := weekKey()
	st.Slots.GetOrCreate(key)

	if err := p.Dispatch(context.Background(), addSlotCommand()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	snap, ok := st.Slots.Read(key)
	if !ok {
		t.Fatalf("expected window cached")
	}
	if _, ok := snap.Get("s1"); !ok {
		t.Fatalf("expected s1 in byId")
	}
	occurrences := 0
	for _, id := range snap.IDs {
		if id == "s1" {
			occurrences++
		}
	}
	if occurrences != 1 {
		t.Fatalf("expected s1 exactly once in order, got %d", occurrences)
	}

	entry, ok := ledger.Peek()
	if !ok {
		t.Fatalf("expected undo entry")
	}
	if entry.Message != "Recurring slot has been added." {
		t.Fatalf("ledger message = %q", entry.Message)
	}
	if len(notices.Notices) != 1 || notices.Notices[0].Level != notify.LevelInfo {
		t.Fatalf("expected one info notice, got %+v", notices.Notices)
	}
}

func TestDispatchValidationFailureNeverSends(t *testing.T) {
	caller := testfixtures.NewCaller()
	p, st, ledger, notices := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	cmd := addSlotCommand()
	cmd.EmployeeID = "not-a-uuid"

	err := p.Dispatch(context.Background(), cmd)
	var vErr *command.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["employeeId"]; !ok {
		t.Fatalf("expected employeeId flagged, got %v", vErr.FieldErrors)
	}
	if len(caller.Requests()) != 0 {
		t.Fatalf("validation failure must never send a request")
	}
	if snap, _ := st.Slots.Read(key); snap.Len() != 0 {
		t.Fatalf("store must be unchanged")
	}
	if ledger.Len() != 0 {
		t.Fatalf("no undo entry on failure")
	}
	if len(notices.Notices) != 1 || notices.Notices[0].Level != notify.LevelWarning {
		t.Fatalf("expected warning notice, got %+v", notices.Notices)
	}
	if got := ErrorKind(err); got != "validation" {
		t.Fatalf("ErrorKind = %s", got)
	}
}

func TestDispatchTransportErrorLeavesCacheUntouched(t *testing.T) {
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Err: &transport.Error{Op: "POST /api/slots", Err: errors.New("connection refused")},
	})
	p, st, ledger, _ := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	err := p.Dispatch(context.Background(), addSlotCommand())
	var tErr *transport.Error
	if !errors.As(err, &tErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if snap, _ := st.Slots.Read(key); snap.Len() != 0 {
		t.Fatalf("store must be unchanged after transport failure")
	}
	if ledger.Len() != 0 {
		t.Fatalf("no undo entry after transport failure")
	}
	if got := ErrorKind(err); got != "transport_error" {
		t.Fatalf("ErrorKind = %s", got)
	}
}

func TestDispatchLogicalFailureSurfacesMarker(t *testing.T) {
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{Message: "Slot overlaps an existing booking."},
	})
	p, st, ledger, notices := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	err := p.Dispatch(context.Background(), addSlotCommand())
	var lErr *LogicalFailure
	if !errors.As(err, &lErr) {
		t.Fatalf("expected logical failure, got %v", err)
	}
	if lErr.Message != "Slot overlaps an existing booking." {
		t.Fatalf("unexpected marker %q", lErr.Message)
	}
	if snap, _ := st.Slots.Read(key); snap.Len() != 0 {
		t.Fatalf("store must be unchanged after logical failure")
	}
	if ledger.Len() != 0 {
		t.Fatalf("no undo entry after logical failure")
	}
	if len(notices.Notices) != 1 || notices.Notices[0].Message != "Slot overlaps an existing booking." {
		t.Fatalf("expected marker surfaced to user, got %+v", notices.Notices)
	}
}

func TestDispatchResponseShapeFailureLeavesCacheUntouched(t *testing.T) {
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{
			Message: "Slot has been added.",
			Data:    json.RawMessage(`{"id":"s1"}`),
		},
	})
	p, st, ledger, _ := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	err := p.Dispatch(context.Background(), addSlotCommand())
	var sErr *ResponseShapeError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected response shape error, got %v", err)
	}
	if snap, _ := st.Slots.Read(key); snap.Len() != 0 {
		t.Fatalf("store must be unchanged after shape failure")
	}
	if ledger.Len() != 0 {
		t.Fatalf("no undo entry after shape failure")
	}
}

func TestDispatchToEvictedWindowIsNoOp(t *testing.T) {
	created := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)))
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{Message: "Slot has been added.", Data: slotPayload(t, created)},
	})
	p, st, ledger, _ := newPipeline(t, caller)

	// The window was never mounted; the acknowledged patch must be dropped
	// silently while the command still commits.
	if err := p.Dispatch(context.Background(), addSlotCommand()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if _, ok := st.Slots.Read(weekKey()); ok {
		t.Fatalf("patch must not create the window")
	}
	if ledger.Len() != 1 {
		t.Fatalf("commit still records undo even when the window is gone")
	}
}

func TestAddThenUndoRestoresOriginalState(t *testing.T) {
	created := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)))
	created.ID = slotID
	caller := testfixtures.NewCaller(
		testfixtures.CallerStep{
			Response: transport.Response{Message: "Slot has been added.", Data: slotPayload(t, created)},
		},
		testfixtures.CallerStep{
			Response: transport.Response{Message: "Slots have been deleted.", Data: slotsPayload(t, []domain.Slot{created})},
		},
	)
	p, st, ledger, _ := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	before, _ := st.Slots.Read(key)

	if err := p.Dispatch(context.Background(), addSlotCommand()); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	undone, err := p.UndoPop(context.Background())
	if err != nil || !undone {
		t.Fatalf("undo failed: undone=%v err=%v", undone, err)
	}

	after, _ := st.Slots.Read(key)
	if after.Len() != before.Len() {
		t.Fatalf("expected pre-add state restored, got %d entries", after.Len())
	}
	if ledger.Len() != 0 {
		t.Fatalf("inverse dispatch must not push a new ledger entry")
	}

	reqs := caller.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected add then delete requests, got %d", len(reqs))
	}
	if reqs[1].Path != "/api/slots" || reqs[1].Method != "DELETE" {
		t.Fatalf("expected inverse delete request, got %s %s", reqs[1].Method, reqs[1].Path)
	}
}

func TestUndoPopOnEmptyLedgerIsQuiet(t *testing.T) {
	caller := testfixtures.NewCaller()
	p, _, _, _ := newPipeline(t, caller)

	undone, err := p.UndoPop(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if undone {
		t.Fatalf("empty ledger must report false")
	}
	if len(caller.Requests()) != 0 {
		t.Fatalf("no request on empty undo")
	}
}

func TestUndoFailureRestoresLedgerEntry(t *testing.T) {
	created := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)))
	caller := testfixtures.NewCaller(
		testfixtures.CallerStep{
			Response: transport.Response{Message: "Slot has been added.", Data: slotPayload(t, created)},
		},
		testfixtures.CallerStep{
			Err: &transport.Error{Op: "DELETE /api/slots", Err: errors.New("gateway timeout")},
		},
	)
	p, st, ledger, _ := newPipeline(t, caller)
	st.Slots.GetOrCreate(weekKey())

	if err := p.Dispatch(context.Background(), addSlotCommand()); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	undone, err := p.UndoPop(context.Background())
	if undone || err == nil {
		t.Fatalf("expected undo to fail, undone=%v err=%v", undone, err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("failed undo must leave the entry poppable")
	}
}

func TestUpdateSlotTimeKeepsPriorSnapshotForUndo(t *testing.T) {
	prior := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)))
	prior.ID = slotID
	moved := prior
	moved.StartTime = time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC)

	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{Message: "Slot time has been updated.", Data: slotPayload(t, moved)},
	})
	p, st, ledger, _ := newPipeline(t, caller)
	key := weekKey()
	st.Slots.Replace(key, []domain.Slot{prior})

	cmd := command.UpdateSlotTime{
		EmployeeID: testfixtures.EmployeeID,
		SlotID:     slotID,
		Hour:       14,
		Minute:     30,
	}
	if err := p.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	snap, _ := st.Slots.Read(key)
	got, _ := snap.Get(slotID)
	if !got.StartTime.Equal(moved.StartTime) {
		t.Fatalf("expected start moved to 14:30, got %v", got.StartTime)
	}

	entry, ok := ledger.Peek()
	if !ok || len(entry.Slots) != 1 {
		t.Fatalf("expected undo entry with prior snapshot")
	}
	if !entry.Slots[0].StartTime.Equal(prior.StartTime) {
		t.Fatalf("snapshot must hold the pre-edit start, got %v", entry.Slots[0].StartTime)
	}
	inverse, ok := command.InverseFor(entry)
	if !ok {
		t.Fatalf("expected inverse command")
	}
	edit := inverse.(command.UpdateSlotTime)
	if edit.Hour != 9 || edit.Minute != 0 {
		t.Fatalf("inverse must restore 09:00, got %02d:%02d", edit.Hour, edit.Minute)
	}
}

func TestRestoreSlotsIsNeverLedgered(t *testing.T) {
	snapshotted := testfixtures.NewSlot(testfixtures.WithStart(time.Date(2025, 3, 6, 10, 0, 0, 0, time.UTC)))
	caller := testfixtures.NewCaller(testfixtures.CallerStep{
		Response: transport.Response{Message: "Slots have been restored.", Data: slotsPayload(t, []domain.Slot{snapshotted})},
	})
	p, st, ledger, _ := newPipeline(t, caller)
	key := weekKey()
	st.Slots.GetOrCreate(key)

	cmd := command.RestoreSlots{EmployeeID: testfixtures.EmployeeID, Slots: []domain.Slot{snapshotted}}
	if err := p.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if ledger.Len() != 0 {
		t.Fatalf("restore must not push a ledger entry")
	}
	snap, _ := st.Slots.Read(key)
	if _, ok := snap.Get(snapshotted.ID); !ok {
		t.Fatalf("expected restored slot in cache")
	}
}
