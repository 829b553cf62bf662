// Package storage bundles the persistence contracts the memory resolver needs
// from a backend: the read side of the chat message log, the memory entry
// table and the session table.
package storage

import (
	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
)

// Driver is implemented by every storage backend (in-memory, SQLite,
// PostgreSQL). Backends are shared by all memory nodes of a process.
type Driver interface {
	chat.MessageLog
	chat.MessageWriter
	chat.SessionStore
	memory.Store

	// Close closes the store and releases any resources.
	Close() error
}
