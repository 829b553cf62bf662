package convmem

import (
	"errors"
	"fmt"
)

// AuthorizationError is returned when a node type outside the allow-list
// requests conversation memory.
type AuthorizationError struct {
	NodeType string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("node type %q is not allowed to access conversation memory", e.NodeType)
}

// ConfigurationError is a user-facing error caused by the execution context,
// such as a missing owner. It is never retried.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return "conversation memory unavailable: " + e.Reason
}

// ErrUnavailable is returned by Acquire when the memory module is disabled.
var ErrUnavailable = ConfigurationError{Reason: "the conversation memory module is disabled"}

// ErrNoOwner is returned when the request carries no owner identity, for
// example a headless or system triggered execution.
var ErrNoOwner = ConfigurationError{
	Reason: "no owner identity could be resolved; run the workflow from a chat or a manual execution",
}

// IsAuthorization reports whether err is (or wraps) an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae AuthorizationError
	return errors.As(err, &ae)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}
