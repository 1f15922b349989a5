package command

import (
	"github.com/example/slotsync/internal/undo"
)

// InverseFor maps a popped undo ledger entry to the command that reverses
// it. Each reversible command has a named inverse command rather than a
// generic diff; entries for kinds with no inverse report false.
func InverseFor(entry undo.Entry) (Command, bool) {
	switch Kind(entry.Kind) {
	case KindAddSlot, KindAddRecurringSlot:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		created := entry.Slots[0]
		return DeleteSlots{EmployeeID: created.EmployeeID, SlotIDs: []string{created.ID}}, true

	case KindDeleteSlots:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		return RestoreSlots{EmployeeID: entry.Slots[0].EmployeeID, Slots: entry.Slots}, true

	case KindDuplicateDay:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		ids := make([]string, 0, len(entry.Slots))
		for _, slot := range entry.Slots {
			ids = append(ids, slot.ID)
		}
		return DeleteSlots{EmployeeID: entry.Slots[0].EmployeeID, SlotIDs: ids}, true

	case KindSetRecurringDay:
		if len(entry.RecurringDates) == 0 {
			return nil, false
		}
		day := entry.RecurringDates[0]
		return UnsetRecurringDay{EmployeeID: day.EmployeeID, Date: day.Date}, true

	case KindUnsetRecurringDay:
		if len(entry.RecurringDates) == 0 {
			return nil, false
		}
		day := entry.RecurringDates[0]
		return SetRecurringDay{EmployeeID: day.EmployeeID, Date: day.Date}, true

	case KindEnableRecurrence:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		slot := entry.Slots[0]
		return DisableRecurrence{EmployeeID: slot.EmployeeID, SlotID: slot.ID}, true

	case KindDisableRecurrence:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		slot := entry.Slots[0]
		return EnableRecurrence{EmployeeID: slot.EmployeeID, SlotID: slot.ID}, true

	case KindUpdateSlotTime:
		if len(entry.Slots) == 0 {
			return nil, false
		}
		// The snapshot carries the pre-edit start time; moving back to its
		// hour and minute restores the slot.
		prior := entry.Slots[0]
		start := prior.StartTime.UTC()
		return UpdateSlotTime{
			EmployeeID: prior.EmployeeID,
			SlotID:     prior.ID,
			Hour:       start.Hour(),
			Minute:     start.Minute(),
		}, true
	}

	return nil, false
}
