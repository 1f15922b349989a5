package syncer

import (
	"errors"
	"fmt"

	"github.com/example/slotsync/internal/command"
	"github.com/example/slotsync/internal/transport"
)

// LogicalFailure reports that the server processed a command but returned an
// unexpected outcome marker. The cache is left untouched and the marker is
// surfaced to the user.
type LogicalFailure struct {
	Command command.Kind
	Message string
}

// Error implements the error interface.
func (e *LogicalFailure) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("syncer: %s reported %q", e.Command, e.Message)
}

// ResponseShapeError reports a server payload that failed the structural
// check guarding against schema drift. The cache is left untouched.
type ResponseShapeError struct {
	Command command.Kind
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *ResponseShapeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("syncer: %s response: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("syncer: %s response: %s", e.Command, e.Reason)
}

// Unwrap exposes the underlying decode failure, if any.
func (e *ResponseShapeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind maps pipeline errors to a stable label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var vErr *command.ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var tErr *transport.Error
	if errors.As(err, &tErr) {
		return "transport_error"
	}
	var lErr *LogicalFailure
	if errors.As(err, &lErr) {
		return "logical_failure"
	}
	var sErr *ResponseShapeError
	if errors.As(err, &sErr) {
		return "response_shape"
	}

	return "unexpected"
}
