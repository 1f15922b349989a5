package domain

import "time"

// SlotType classifies a slot on the employee calendar.
type SlotType string

const (
	// SlotAvailable marks a slot open for booking.
	SlotAvailable SlotType = "AVAILABLE"
	// SlotBlocked marks a slot the employee has reserved for themselves.
	SlotBlocked SlotType = "BLOCKED"
	// SlotBooked marks a slot held by a confirmed session.
	SlotBooked SlotType = "BOOKED"
)

// SlotDurations lists the durations, in minutes, a slot may have.
var SlotDurations = []int{30, 45, 60}

// ValidDuration reports whether minutes is one of the supported slot lengths.
func ValidDuration(minutes int) bool {
	for _, d := range SlotDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// Slot represents a bookable or blocked time interval for an employee.
// Within any committed state no two slots for one employee share a start time.
type Slot struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Type       SlotType  `json:"type"`
	StartTime  time.Time `json:"startTime"`
	Duration   int       `json:"duration"`
	Recurring  bool      `json:"recurring"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EntityID returns the slot identifier.
func (s Slot) EntityID() string { return s.ID }

// OccursAt returns the instant the slot starts.
func (s Slot) OccursAt() time.Time { return s.StartTime }

// Session represents a confirmed booking binding a customer to a slot.
// Every session references exactly one slot of type BOOKED, and a slot is
// referenced by at most one live session.
type Session struct {
	ID         string    `json:"id"`
	SlotID     string    `json:"slotId"`
	EmployeeID string    `json:"employeeId"`
	CustomerID string    `json:"customerId"`
	StartTime  time.Time `json:"startTime"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EntityID returns the session identifier.
func (s Session) EntityID() string { return s.ID }

// OccursAt returns the instant the booked slot starts.
func (s Session) OccursAt() time.Time { return s.StartTime }

// RecurringDate marks a calendar date as a recurring-day template source.
// At most one record exists per (employee, date) pair.
type RecurringDate struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	Date       string `json:"date"`
}

// EntityID returns the record identifier.
func (r RecurringDate) EntityID() string { return r.ID }

// OccursAt returns midnight UTC of the marked date. A malformed date yields
// the zero time, which never falls inside a subscribed window.
func (r RecurringDate) OccursAt() time.Time {
	t, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Entity is implemented by every kind stored in a normalized collection.
type Entity interface {
	EntityID() string
	OccursAt() time.Time
}
