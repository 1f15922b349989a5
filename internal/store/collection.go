package store

import (
	"github.com/example/slotsync/internal/domain"
)

// Op identifies a structural edit applied to a normalized collection.
type Op string

const (
	// OpAdd inserts an entity, or overwrites it when the id already exists.
	OpAdd Op = "add"
	// OpReplace overwrites an existing entity in place.
	OpReplace Op = "replace"
	// OpRemove deletes an entity.
	OpRemove Op = "remove"
)

// Patch is one structural edit against a normalized collection. Patches are
// applied as ordered lists; later operations observe earlier ones' effects.
type Patch[T domain.Entity] struct {
	Op     Op
	ID     string
	Entity T
}

// Add builds an add patch for the entity.
func Add[T domain.Entity](entity T) Patch[T] {
	return Patch[T]{Op: OpAdd, ID: entity.EntityID(), Entity: entity}
}

// Replace builds a replace patch for the entity.
func Replace[T domain.Entity](entity T) Patch[T] {
	return Patch[T]{Op: OpReplace, ID: entity.EntityID(), Entity: entity}
}

// Remove builds a remove patch for the id.
func Remove[T domain.Entity](id string) Patch[T] {
	return Patch[T]{Op: OpRemove, ID: id}
}

// collection is the normalized container: an id-indexed entity map plus the
// insertion-ordered id sequence. The two are kept as exact mirrors; ids never
// holds a duplicate or an id absent from byID.
type collection[T domain.Entity] struct {
	byID map[string]T
	ids  []string
}

func newCollection[T domain.Entity]() *collection[T] {
	return &collection[T]{byID: make(map[string]T)}
}

// add stores the entity. Re-adding an existing id overwrites the stored value
// but leaves the id order untouched, so repeated creates stay idempotent.
func (c *collection[T]) add(id string, entity T) {
	if _, exists := c.byID[id]; !exists {
		c.ids = append(c.ids, id)
	}
	c.byID[id] = entity
}

// replace overwrites an existing entity. It reports false without modifying
// the collection when the id is absent.
func (c *collection[T]) replace(id string, entity T) bool {
	if _, exists := c.byID[id]; !exists {
		return false
	}
	c.byID[id] = entity
	return true
}

// remove deletes the entity and its id from the order. It reports false
// without modifying the collection when the id is absent.
func (c *collection[T]) remove(id string) bool {
	if _, exists := c.byID[id]; !exists {
		return false
	}
	delete(c.byID, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns an independent copy of the collection state.
func (c *collection[T]) snapshot() Snapshot[T] {
	byID := make(map[string]T, len(c.byID))
	for id, entity := range c.byID {
		byID[id] = entity
	}
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return Snapshot[T]{ByID: byID, IDs: ids}
}

// Snapshot is a read-only copy of a normalized collection. Mutating a
// snapshot never affects the cache it was read from.
type Snapshot[T domain.Entity] struct {
	ByID map[string]T
	IDs  []string
}

// Len returns the number of entities in the snapshot.
func (s Snapshot[T]) Len() int { return len(s.IDs) }

// Get returns the entity stored under id.
func (s Snapshot[T]) Get(id string) (T, bool) {
	entity, ok := s.ByID[id]
	return entity, ok
}

// Entities returns the entities in insertion order.
func (s Snapshot[T]) Entities() []T {
	out := make([]T, 0, len(s.IDs))
	for _, id := range s.IDs {
		out = append(out, s.ByID[id])
	}
	return out
}
