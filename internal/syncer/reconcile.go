package syncer

import (
	"encoding/json"

	"github.com/example/slotsync/internal/command"
	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
	"github.com/example/slotsync/internal/undo"
)

// reconcile validates the acknowledged response payload, derives the target
// week window from the affected entity's date and applies the patches that
// bring the cache in line with the server's result. It returns the undo
// entry for reversible commands, or nil. Called with applyMu held.
func (p *Pipeline) reconcile(cmd command.Command, resp transport.Response) (*undo.Entry, error) {
	switch cmd.(type) {
	case command.AddSlot, command.AddRecurringSlot:
		slot, err := p.decodeSlot(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		p.applySlotPatch(slot, store.Add(slot))
		return &undo.Entry{Slots: []domain.Slot{slot}}, nil

	case command.DeleteSlots:
		slots, err := p.decodeSlots(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			p.applySlotPatch(slot, store.Remove[domain.Slot](slot.ID))
		}
		return &undo.Entry{Slots: slots}, nil

	case command.RestoreSlots:
		slots, err := p.decodeSlots(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			p.applySlotPatch(slot, store.Add(slot))
		}
		return nil, nil

	case command.DuplicateDay:
		created, err := p.decodeSlots(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		for _, slot := range created {
			p.applySlotPatch(slot, store.Add(slot))
		}
		return &undo.Entry{Slots: created}, nil

	case command.EnableRecurrence, command.DisableRecurrence:
		slot, err := p.decodeSlot(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		p.applySlotPatch(slot, store.Replace(slot))
		return &undo.Entry{Slots: []domain.Slot{slot}}, nil

	case command.UpdateSlotTime:
		slot, err := p.decodeSlot(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		key := store.KeyFor(slot.EmployeeID, timegrid.WeekOf(slot.StartTime))
		// Capture the pre-edit snapshot before patching; the inverse edit
		// needs the prior hour and minute.
		var entry *undo.Entry
		if snap, ok := p.store.Slots.Read(key); ok {
			if prior, ok := snap.Get(slot.ID); ok {
				entry = &undo.Entry{Slots: []domain.Slot{prior}}
			}
		}
		p.store.Slots.Apply(key, []store.Patch[domain.Slot]{store.Replace(slot)})
		return entry, nil

	case command.SetRecurringDay:
		day, err := p.decodeRecurringDate(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		p.applyRecurringDatePatch(day, store.Add(day))
		return &undo.Entry{RecurringDates: []domain.RecurringDate{day}}, nil

	case command.UnsetRecurringDay:
		day, err := p.decodeRecurringDate(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		p.applyRecurringDatePatch(day, store.Remove[domain.RecurringDate](day.ID))
		return &undo.Entry{RecurringDates: []domain.RecurringDate{day}}, nil

	case command.RescheduleSession:
		session, err := p.decodeSession(cmd.Kind(), resp.Data)
		if err != nil {
			return nil, err
		}
		key := store.KeyFor(session.EmployeeID, timegrid.WeekOf(session.StartTime))
		// Add acts as an upsert: the session may land in a week window it
		// was not previously cached in.
		p.store.Sessions.Apply(key, []store.Patch[domain.Session]{store.Add(session)})
		return nil, nil

	default:
		return nil, &ResponseShapeError{Command: cmd.Kind(), Reason: "unhandled command kind"}
	}
}

func (p *Pipeline) applySlotPatch(slot domain.Slot, patch store.Patch[domain.Slot]) {
	key := store.KeyFor(slot.EmployeeID, timegrid.WeekOf(slot.StartTime))
	p.store.Slots.Apply(key, []store.Patch[domain.Slot]{patch})
}

func (p *Pipeline) applyRecurringDatePatch(day domain.RecurringDate, patch store.Patch[domain.RecurringDate]) {
	key := store.KeyFor(day.EmployeeID, timegrid.WeekOf(day.OccursAt()))
	p.store.RecurringDates.Apply(key, []store.Patch[domain.RecurringDate]{patch})
}

func (p *Pipeline) decodeSlot(kind command.Kind, data json.RawMessage) (domain.Slot, error) {
	var slot domain.Slot
	if len(data) == 0 || string(data) == "null" {
		return domain.Slot{}, &ResponseShapeError{Command: kind, Reason: "missing slot payload"}
	}
	if err := json.Unmarshal(data, &slot); err != nil {
		return domain.Slot{}, &ResponseShapeError{Command: kind, Reason: "undecodable slot payload", Err: err}
	}
	if err := checkSlotShape(kind, slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func (p *Pipeline) decodeSlots(kind command.Kind, data json.RawMessage) ([]domain.Slot, error) {
	var slots []domain.Slot
	if len(data) == 0 || string(data) == "null" {
		return nil, &ResponseShapeError{Command: kind, Reason: "missing slots payload"}
	}
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, &ResponseShapeError{Command: kind, Reason: "undecodable slots payload", Err: err}
	}
	if len(slots) == 0 {
		return nil, &ResponseShapeError{Command: kind, Reason: "empty slots payload"}
	}
	for _, slot := range slots {
		if err := checkSlotShape(kind, slot); err != nil {
			return nil, err
		}
	}
	return slots, nil
}

func (p *Pipeline) decodeSession(kind command.Kind, data json.RawMessage) (domain.Session, error) {
	var session domain.Session
	if len(data) == 0 || string(data) == "null" {
		return domain.Session{}, &ResponseShapeError{Command: kind, Reason: "missing session payload"}
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, &ResponseShapeError{Command: kind, Reason: "undecodable session payload", Err: err}
	}
	if session.ID == "" || session.SlotID == "" || session.EmployeeID == "" || session.StartTime.IsZero() {
		return domain.Session{}, &ResponseShapeError{Command: kind, Reason: "session payload missing required fields"}
	}
	return session, nil
}

func (p *Pipeline) decodeRecurringDate(kind command.Kind, data json.RawMessage) (domain.RecurringDate, error) {
	var day domain.RecurringDate
	if len(data) == 0 || string(data) == "null" {
		return domain.RecurringDate{}, &ResponseShapeError{Command: kind, Reason: "missing recurring date payload"}
	}
	if err := json.Unmarshal(data, &day); err != nil {
		return domain.RecurringDate{}, &ResponseShapeError{Command: kind, Reason: "undecodable recurring date payload", Err: err}
	}
	if day.ID == "" || day.EmployeeID == "" {
		return domain.RecurringDate{}, &ResponseShapeError{Command: kind, Reason: "recurring date payload missing required fields"}
	}
	if _, err := timegrid.ParseDate(day.Date); err != nil {
		return domain.RecurringDate{}, &ResponseShapeError{Command: kind, Reason: "recurring date payload has malformed date", Err: err}
	}
	return day, nil
}

func checkSlotShape(kind command.Kind, slot domain.Slot) error {
	if slot.ID == "" || slot.EmployeeID == "" || slot.StartTime.IsZero() {
		return &ResponseShapeError{Command: kind, Reason: "slot payload missing required fields"}
	}
	if !domain.ValidDuration(slot.Duration) {
		return &ResponseShapeError{Command: kind, Reason: "slot payload has unsupported duration"}
	}
	switch slot.Type {
	case domain.SlotAvailable, domain.SlotBlocked, domain.SlotBooked:
	default:
		return &ResponseShapeError{Command: kind, Reason: "slot payload has unknown type"}
	}
	return nil
}
