package history

import (
	"errors"
	"fmt"
)

var (
	// ErrCycle is returned when walking parent pointers revisits a message.
	ErrCycle = errors.New("cycle in parent chain")

	// ErrUnknownHead is returned when the requested head is not in the session log.
	ErrUnknownHead = errors.New("head message not found")

	// ErrDuplicateMessage is returned when two log rows share an id.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrDanglingParent is returned when a message references a parent that is
	// not part of the session log.
	ErrDanglingParent = errors.New("parent message not found")
)

// StructuralError reports a malformed message tree. It is never retryable.
type StructuralError struct {
	MessageID string
	Err       error
}

func (e *StructuralError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("malformed conversation history: %v", e.Err)
	}
	return fmt.Sprintf("malformed conversation history at message %s: %v", e.MessageID, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is (or wraps) a *StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
