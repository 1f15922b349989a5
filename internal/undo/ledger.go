// Package undo implements the bounded ledger of reversible mutations. The
// ledger stores descriptions and entity snapshots; mapping an entry back to
// the inverse command is the caller's concern.
package undo

import (
	"sync"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/metrics"
)

// DefaultLimit bounds the ledger when no explicit limit is configured. An
// uncapped ledger grows without bound in long sessions, so the oldest
// entries are dropped once the limit is reached.
const DefaultLimit = 50

// Entry records one reversible mutation: the user-facing message and the
// entity snapshots the inverse command needs. Snapshots are independent
// copies; later cache mutations never alter them.
type Entry struct {
	Message        string
	Kind           string
	Slots          []domain.Slot
	RecurringDates []domain.RecurringDate
}

func (e Entry) clone() Entry {
	out := Entry{Message: e.Message, Kind: e.Kind}
	if len(e.Slots) > 0 {
		out.Slots = make([]domain.Slot, len(e.Slots))
		copy(out.Slots, e.Slots)
	}
	if len(e.RecurringDates) > 0 {
		out.RecurringDates = make([]domain.RecurringDate, len(e.RecurringDates))
		copy(out.RecurringDates, e.RecurringDates)
	}
	return out
}

// Ledger is a bounded LIFO stack of undo entries.
type Ledger struct {
	mu       sync.Mutex
	limit    int
	entries  []Entry
	recorder metrics.Recorder
}

// NewLedger constructs a ledger holding at most limit entries. Non-positive
// limits fall back to DefaultLimit. recorder may be nil.
func NewLedger(limit int, recorder metrics.Recorder) *Ledger {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ledger{limit: limit, recorder: recorder}
}

// Push appends an entry, evicting the oldest one when the ledger is full.
func (l *Ledger) Push(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.limit {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry.clone())
	l.recordDepthLocked()
}

// Pop removes and returns the most recent entry. An empty ledger reports
// false rather than an error.
func (l *Ledger) Pop() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	entry := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	l.recordDepthLocked()
	return entry, true
}

// Peek returns the most recent entry without removing it.
func (l *Ledger) Peek() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1].clone(), true
}

// Len returns the current number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) recordDepthLocked() {
	if l.recorder != nil {
		l.recorder.RecordUndoDepth(len(l.entries))
	}
}
