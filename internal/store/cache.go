package store

import (
	"log/slog"
	"sync"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/metrics"
	"github.com/example/slotsync/internal/timegrid"
)

// Status tracks the fetch lifecycle of a cached query window.
type Status string

const (
	// StatusIdle marks a window that has not been fetched yet.
	StatusIdle Status = "idle"
	// StatusLoading marks a window whose fetch is in flight.
	StatusLoading Status = "loading"
	// StatusSucceeded marks a window whose fetch completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a window whose fetch failed.
	StatusFailed Status = "failed"
)

// Key identifies a cached date-window view: one employee, one inclusive
// calendar date range in the wire format.
type Key struct {
	EmployeeID string
	Start      string
	End        string
}

// KeyFor builds the key for an employee and week window.
func KeyFor(employeeID string, w timegrid.Window) Key {
	return Key{EmployeeID: employeeID, Start: w.StartDate(), End: w.EndDate()}
}

// Window reconstructs the date window the key spans.
func (k Key) Window() (timegrid.Window, error) {
	start, err := timegrid.ParseDate(k.Start)
	if err != nil {
		return timegrid.Window{}, err
	}
	end, err := timegrid.ParseDate(k.End)
	if err != nil {
		return timegrid.Window{}, err
	}
	return timegrid.Window{Start: start, End: end}, nil
}

type entry[T domain.Entity] struct {
	collection *collection[T]
	status     Status
}

// Cache holds one normalized collection per query key for a single entity
// kind. Patch application is atomic with respect to readers: the mutex is
// held for a whole patch list, so Read never observes a partial application.
type Cache[T domain.Entity] struct {
	mu       sync.Mutex
	kind     string
	entries  map[Key]*entry[T]
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewCache constructs an empty cache for the named entity kind.
func NewCache[T domain.Entity](kind string, logger *slog.Logger, recorder metrics.Recorder) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{
		kind:     kind,
		entries:  make(map[Key]*entry[T]),
		logger:   logger,
		recorder: recorder,
	}
}

// GetOrCreate ensures an entry exists for the key, creating an idle one when
// absent, and returns its current status.
func (c *Cache[T]) GetOrCreate(key Key) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrCreateLocked(key).status
}

func (c *Cache[T]) getOrCreateLocked(key Key) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{collection: newCollection[T](), status: StatusIdle}
		c.entries[key] = e
	}
	return e
}

// SetStatus updates the fetch status for the key, creating the entry when
// needed.
func (c *Cache[T]) SetStatus(key Key, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreateLocked(key).status = status
}

// Replace swaps the key's collection for the given entities in order,
// marking the entry succeeded. Used when a fetch completes.
func (c *Cache[T]) Replace(key Key, entities []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.getOrCreateLocked(key)
	e.collection = newCollection[T]()
	for _, entity := range entities {
		e.collection.add(entity.EntityID(), entity)
	}
	e.status = StatusSucceeded
}

// Apply applies the patch list, in order, to the key's collection. Applying
// to an absent key is a no-op: the corresponding view is not mounted, which
// is an expected condition rather than an error.
func (c *Cache[T]) Apply(key Key, patches []Patch[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.logger.Debug("patch target window not cached, dropping patches",
			"kind", c.kind, "employee_id", key.EmployeeID, "start", key.Start, "end", key.End)
		return
	}

	for _, patch := range patches {
		switch patch.Op {
		case OpAdd:
			e.collection.add(patch.ID, patch.Entity)
			c.recordPatch(patch.Op)
		case OpReplace:
			if !e.collection.replace(patch.ID, patch.Entity) {
				c.warnMissing(patch.Op, patch.ID, key)
				continue
			}
			c.recordPatch(patch.Op)
		case OpRemove:
			if !e.collection.remove(patch.ID) {
				c.warnMissing(patch.Op, patch.ID, key)
				continue
			}
			c.recordPatch(patch.Op)
		default:
			c.logger.Warn("unknown patch operation", "kind", c.kind, "op", string(patch.Op))
		}
	}
}

// Read returns an independent snapshot of the key's collection, or false
// when the window is not cached.
func (c *Cache[T]) Read(key Key) (Snapshot[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Snapshot[T]{}, false
	}
	return e.collection.snapshot(), true
}

// Evict removes the entry for the key, if present.
func (c *Cache[T]) Evict(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset discards every cached window.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry[T])
	c.mu.Unlock()
}

func (c *Cache[T]) recordPatch(op Op) {
	if c.recorder != nil {
		c.recorder.RecordPatch(c.kind, string(op))
	}
}

func (c *Cache[T]) warnMissing(op Op, id string, key Key) {
	c.logger.Warn("patch references absent entity id",
		"kind", c.kind, "op", string(op), "id", id,
		"employee_id", key.EmployeeID, "start", key.Start, "end", key.End)
	if c.recorder != nil {
		c.recorder.RecordPatchMiss(c.kind, string(op))
	}
}
