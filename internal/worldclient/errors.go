package worldclient

import (
	"errors"
	"fmt"
)

// ErrClosed reports an operation on a session that has ended. Callers must
// treat it as "operation abandoned" rather than a failure to retry.
var ErrClosed = errors.New("worldclient: session closed")

// ConnectionError wraps a dial or handshake failure. The supervisor retries
// these on its fixed timer.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "worldclient: connect: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// GoalError reports a rejected move-near task.
type GoalError struct {
	Code    string
	Message string
}

func (e *GoalError) Error() string { return fmt.Sprintf("worldclient: goal rejected: %s", e.Code) }

// PathError reports a rejected or failed path task.
type PathError struct {
	Code    string
	Message string
}

func (e *PathError) Error() string { return fmt.Sprintf("worldclient: path failed: %s", e.Code) }

// RestError reports a rejected rest action.
type RestError struct {
	Code    string
	Message string
}

func (e *RestError) Error() string { return fmt.Sprintf("worldclient: rest rejected: %s", e.Code) }

// DiscardError reports a rejected inventory discard for one slot.
type DiscardError struct {
	Slot    int
	Code    string
	Message string
}

func (e *DiscardError) Error() string {
	return fmt.Sprintf("worldclient: discard slot %d rejected: %s", e.Slot, e.Code)
}
