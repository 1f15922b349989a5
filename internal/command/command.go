// Package command defines the mutation vocabulary the pipeline accepts: one
// params struct per user-initiated command, its wire request, the success
// marker the server is expected to return, and the inverse-command mapping
// the undo ledger relies on.
package command

import (
	"fmt"
	"net/http"
	"time"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
)

// Kind names a mutation command.
type Kind string

const (
	KindAddSlot           Kind = "add_slot"
	KindAddRecurringSlot  Kind = "add_recurring_slot"
	KindDeleteSlots       Kind = "delete_slots"
	KindRestoreSlots      Kind = "restore_slots"
	KindDuplicateDay      Kind = "duplicate_day"
	KindSetRecurringDay   Kind = "set_recurring_day"
	KindUnsetRecurringDay Kind = "unset_recurring_day"
	KindEnableRecurrence  Kind = "enable_recurrence"
	KindDisableRecurrence Kind = "disable_recurrence"
	KindUpdateSlotTime    Kind = "update_slot_time"
	KindRescheduleSession Kind = "reschedule_session"
)

// Command is implemented by every mutation params struct.
type Command interface {
	Kind() Kind
	Request() transport.Request
	// Markers lists the success messages the server may return for this
	// command. Any other message is a logical failure.
	Markers() []string
}

// futureConstrained is implemented by commands whose target instant must not
// lie strictly in the past. The returned field names the offending input.
type futureConstrained interface {
	futureInstant() (field string, instant time.Time, err error)
}

// startInstant combines a wire date with an hour and minute, in UTC.
func startInstant(date string, hour, minute int) (time.Time, error) {
	day, err := timegrid.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

// AddSlot creates a one-off availability or blocked slot.
type AddSlot struct {
	EmployeeID string          `json:"employeeId" validate:"required,uuid4"`
	Date       string          `json:"date" validate:"required,caldate"`
	Hour       int             `json:"hour" validate:"min=0,max=23"`
	Minute     int             `json:"minute" validate:"min=0,max=59"`
	Duration   int             `json:"duration" validate:"required,oneof=30 45 60"`
	Type       domain.SlotType `json:"type" validate:"required,oneof=AVAILABLE BLOCKED"`
}

func (c AddSlot) Kind() Kind { return KindAddSlot }

func (c AddSlot) Request() transport.Request {
	return transport.Request{Method: http.MethodPost, Path: "/api/slots", Body: c}
}

func (c AddSlot) Markers() []string {
	return []string{"Slot has been added.", "Recurring slot has been added."}
}

func (c AddSlot) futureInstant() (string, time.Time, error) {
	instant, err := startInstant(c.Date, c.Hour, c.Minute)
	return "date", instant, err
}

// AddRecurringSlot creates a slot that repeats weekly from its date onward.
type AddRecurringSlot struct {
	EmployeeID string          `json:"employeeId" validate:"required,uuid4"`
	Date       string          `json:"date" validate:"required,caldate"`
	Hour       int             `json:"hour" validate:"min=0,max=23"`
	Minute     int             `json:"minute" validate:"min=0,max=59"`
	Duration   int             `json:"duration" validate:"required,oneof=30 45 60"`
	Type       domain.SlotType `json:"type" validate:"required,oneof=AVAILABLE BLOCKED"`
}

func (c AddRecurringSlot) Kind() Kind { return KindAddRecurringSlot }

func (c AddRecurringSlot) Request() transport.Request {
	return transport.Request{Method: http.MethodPost, Path: "/api/slots/recurring", Body: c}
}

func (c AddRecurringSlot) Markers() []string {
	return []string{"Recurring slot has been added."}
}

func (c AddRecurringSlot) futureInstant() (string, time.Time, error) {
	instant, err := startInstant(c.Date, c.Hour, c.Minute)
	return "date", instant, err
}

// DeleteSlots removes one or more slots belonging to an employee.
type DeleteSlots struct {
	EmployeeID string   `json:"employeeId" validate:"required,uuid4"`
	SlotIDs    []string `json:"slotIds" validate:"required,min=1,dive,uuid4"`
}

func (c DeleteSlots) Kind() Kind { return KindDeleteSlots }

func (c DeleteSlots) Request() transport.Request {
	return transport.Request{Method: http.MethodDelete, Path: "/api/slots", Body: c}
}

func (c DeleteSlots) Markers() []string {
	return []string{"Slots have been deleted."}
}

// RestoreSlots re-adds previously deleted slots from their snapshots. It is
// the inverse of DeleteSlots and is never itself recorded for undo.
type RestoreSlots struct {
	EmployeeID string        `json:"employeeId" validate:"required,uuid4"`
	Slots      []domain.Slot `json:"slots" validate:"required,min=1"`
}

func (c RestoreSlots) Kind() Kind { return KindRestoreSlots }

func (c RestoreSlots) Request() transport.Request {
	return transport.Request{Method: http.MethodPost, Path: "/api/slots/restore", Body: c}
}

func (c RestoreSlots) Markers() []string {
	return []string{"Slots have been restored."}
}

// DuplicateDay copies every slot from one calendar day onto another.
type DuplicateDay struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	SourceDate string `json:"sourceDate" validate:"required,caldate"`
	TargetDate string `json:"targetDate" validate:"required,caldate"`
}

func (c DuplicateDay) Kind() Kind { return KindDuplicateDay }

func (c DuplicateDay) Request() transport.Request {
	return transport.Request{Method: http.MethodPost, Path: "/api/days/duplicate", Body: c}
}

func (c DuplicateDay) Markers() []string {
	return []string{"Day has been duplicated."}
}

// SetRecurringDay marks a calendar date as a recurring-day template source.
type SetRecurringDay struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	Date       string `json:"date" validate:"required,caldate"`
}

func (c SetRecurringDay) Kind() Kind { return KindSetRecurringDay }

func (c SetRecurringDay) Request() transport.Request {
	return transport.Request{Method: http.MethodPost, Path: "/api/days/recurring", Body: c}
}

func (c SetRecurringDay) Markers() []string {
	return []string{"Recurring day has been set."}
}

// A recurring day stays valid through the end of its date, so the whole day
// counts as "not in the past".
func (c SetRecurringDay) futureInstant() (string, time.Time, error) {
	day, err := timegrid.ParseDate(c.Date)
	if err != nil {
		return "date", time.Time{}, err
	}
	return "date", day.Add(24*time.Hour - time.Second), nil
}

// UnsetRecurringDay removes a recurring-day marker.
type UnsetRecurringDay struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	Date       string `json:"date" validate:"required,caldate"`
}

func (c UnsetRecurringDay) Kind() Kind { return KindUnsetRecurringDay }

func (c UnsetRecurringDay) Request() transport.Request {
	return transport.Request{Method: http.MethodDelete, Path: "/api/days/recurring", Body: c}
}

func (c UnsetRecurringDay) Markers() []string {
	return []string{"Recurring day has been removed."}
}

// EnableRecurrence flips a slot's recurring flag on.
type EnableRecurrence struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	SlotID     string `json:"slotId" validate:"required,uuid4"`
}

func (c EnableRecurrence) Kind() Kind { return KindEnableRecurrence }

func (c EnableRecurrence) Request() transport.Request {
	return transport.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/slots/%s/recurrence", c.SlotID),
		Body:   c,
	}
}

func (c EnableRecurrence) Markers() []string {
	return []string{"Slot recurrence has been enabled."}
}

// DisableRecurrence flips a slot's recurring flag off.
type DisableRecurrence struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	SlotID     string `json:"slotId" validate:"required,uuid4"`
}

func (c DisableRecurrence) Kind() Kind { return KindDisableRecurrence }

func (c DisableRecurrence) Request() transport.Request {
	return transport.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/api/slots/%s/recurrence", c.SlotID),
		Body:   c,
	}
}

func (c DisableRecurrence) Markers() []string {
	return []string{"Slot recurrence has been disabled."}
}

// UpdateSlotTime moves a slot to a different hour and minute on its day.
type UpdateSlotTime struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	SlotID     string `json:"slotId" validate:"required,uuid4"`
	Hour       int    `json:"hour" validate:"min=0,max=23"`
	Minute     int    `json:"minute" validate:"min=0,max=59"`
}

func (c UpdateSlotTime) Kind() Kind { return KindUpdateSlotTime }

func (c UpdateSlotTime) Request() transport.Request {
	return transport.Request{
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/api/slots/%s/time", c.SlotID),
		Body:   c,
	}
}

func (c UpdateSlotTime) Markers() []string {
	return []string{"Slot time has been updated."}
}

// RescheduleSession moves a session onto a different slot.
type RescheduleSession struct {
	SessionID string `json:"sessionId" validate:"required,uuid4"`
	SlotID    string `json:"slotId" validate:"required,uuid4"`
}

func (c RescheduleSession) Kind() Kind { return KindRescheduleSession }

func (c RescheduleSession) Request() transport.Request {
	return transport.Request{
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/api/sessions/%s", c.SessionID),
		Body:   c,
	}
}

func (c RescheduleSession) Markers() []string {
	return []string{"Session has been rescheduled."}
}
