// Package transport defines the wire contract between the sync core and the
// scheduling server: a request/response call carrying the {message, data}
// envelope, and named push-event channels with at-least-once delivery.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channel names for the push-event subscription interface.
const (
	ChannelSlots    = "slots"
	ChannelSessions = "sessions"
)

// Request describes one mutation call to the server.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Response is the server's envelope for every mutation. Message carries the
// outcome marker; Data carries the affected entity payload, or null.
type Response struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Action classifies a push event.
type Action string

const (
	// ActionCreate announces a newly created entity.
	ActionCreate Action = "create"
	// ActionUpdate announces a changed entity.
	ActionUpdate Action = "update"
	// ActionDelete announces a removed entity.
	ActionDelete Action = "delete"
)

// PushEvent is one out-of-band change notification. Data holds the affected
// entity encoded in the same wire shape the request path uses.
type PushEvent struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Caller issues mutation requests. Implementations do not retry; a failed
// call is reported once and the caller decides what to surface.
type Caller interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// Subscriber yields ordered push-event streams per named channel. The
// returned channel is closed when the subscription ends; stop releases the
// underlying connection.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (events <-chan PushEvent, stop func(), err error)
}

// Error wraps a network or server-level call failure. The core never retries
// these; they surface to the UI untouched.
type Error struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
