// Package store implements the normalized entity cache: per-window
// collections of slots, sessions and recurring dates, updated exclusively
// through an ordered add/replace/remove patch vocabulary.
package store

import (
	"log/slog"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/metrics"
)

// Entity kind labels used for logs and metrics.
const (
	KindSlots          = "slots"
	KindSessions       = "sessions"
	KindRecurringDates = "recurring_dates"
)

// Store owns every query cache entry for the lifetime of a user session. It
// is constructed at session start and Reset on logout; nothing survives a
// process restart.
type Store struct {
	Slots          *Cache[domain.Slot]
	Sessions       *Cache[domain.Session]
	RecurringDates *Cache[domain.RecurringDate]
}

// New constructs an empty store. recorder may be nil.
func New(logger *slog.Logger, recorder metrics.Recorder) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Slots:          NewCache[domain.Slot](KindSlots, logger, recorder),
		Sessions:       NewCache[domain.Session](KindSessions, logger, recorder),
		RecurringDates: NewCache[domain.RecurringDate](KindRecurringDates, logger, recorder),
	}
}

// Reset discards every cached window across all entity kinds.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.Slots.Reset()
	s.Sessions.Reset()
	s.RecurringDates.Reset()
}
