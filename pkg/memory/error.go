package memory

import "errors"

// ErrNilEntry is returned when a nil entry is appended.
var ErrNilEntry = errors.New("cannot store nil memory entry")

// InvalidEntryError is returned when an entry is missing a required field.
type InvalidEntryError struct {
	Field string
}

func (e InvalidEntryError) Error() string {
	return "invalid memory entry: missing or bad " + e.Field
}
