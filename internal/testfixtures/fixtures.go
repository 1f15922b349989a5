package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/transport"
)

var slotCounter uint64

var referenceTime = time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures: a
// Monday morning, so the reference week spans 2025-03-03 to 2025-03-09.
func ReferenceTime() time.Time {
	return referenceTime
}

// EmployeeID is a stable well-formed identifier for fixture entities.
const EmployeeID = "3b64c1d4-8f0a-4a5e-9c2b-1d6e7f8a9b0c"

// SlotOption configures a generated slot fixture.
type SlotOption func(*domain.Slot)

// WithStart overrides the slot start time.
func WithStart(start time.Time) SlotOption {
	return func(s *domain.Slot) { s.StartTime = start }
}

// WithSlotID overrides the generated identifier.
func WithSlotID(id string) SlotOption {
	return func(s *domain.Slot) { s.ID = id }
}

// WithType overrides the slot type.
func WithType(t domain.SlotType) SlotOption {
	return func(s *domain.Slot) { s.Type = t }
}

// NewSlot returns a deterministic slot in the reference week with optional
// overrides. Successive calls advance the start time by an hour so fixture
// slots never collide on (employee, start).
func NewSlot(opts ...SlotOption) domain.Slot {
	idx := atomic.AddUint64(&slotCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	slot := domain.Slot{
		ID:         fmt.Sprintf("a%07d-0000-4000-8000-000000000000", idx),
		EmployeeID: EmployeeID,
		Type:       domain.SlotAvailable,
		StartTime:  start,
		Duration:   30,
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&slot)
	}
	return slot
}

// CallerStep scripts one Call result for the fake transport.
type CallerStep struct {
	Response transport.Response
	Err      error
}

// Caller is a scripted transport.Caller that records every request it
// receives and serves canned results in order.
type Caller struct {
	mu       sync.Mutex
	steps    []CallerStep
	requests []transport.Request
}

// NewCaller returns a Caller that serves the given steps in order. Calls
// beyond the script fail loudly.
func NewCaller(steps ...CallerStep) *Caller {
	return &Caller{steps: steps}
}

// Call implements transport.Caller.
func (c *Caller) Call(_ context.Context, req transport.Request) (transport.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if len(c.steps) == 0 {
		return transport.Response{}, &transport.Error{Op: "unscripted " + req.Path, Err: fmt.Errorf("no step queued")}
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.Response, step.Err
}

// Enqueue appends further scripted steps.
func (c *Caller) Enqueue(steps ...CallerStep) {
	c.mu.Lock()
	c.steps = append(c.steps, steps...)
	c.mu.Unlock()
}

// Requests returns a copy of the requests observed so far.
func (c *Caller) Requests() []transport.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Request, len(c.requests))
	copy(out, c.requests)
	return out
}
