package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryAppended is emitted after a memory entry is persisted.
	EventTypeMemoryAppended = "branchmem.memory.appended"

	// EventTypeMemoryCleared is emitted after a memory node's entries are removed.
	EventTypeMemoryCleared = "branchmem.memory.cleared"
)

// MemoryEvent is a transport-neutral event payload for a memory mutation.
type MemoryEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	SessionID     string `json:"session_id"`
	MemoryNodeID  string `json:"memory_node_id"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Entry is set for appended events.
	Entry *EntryMeta `json:"entry,omitempty"`

	// Removed is set for cleared events.
	Removed int `json:"removed,omitempty"`
}

// EntryMeta describes the appended entry without its content.
type EntryMeta struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// Key returns the partitioning key for the event. Events of one memory node
// share a key so consumers observe them in order.
func (e *MemoryEvent) Key() string {
	return e.SessionID + "/" + e.MemoryNodeID
}

// NewAppendedEvent builds an appended event.
func NewAppendedEvent(sessionID, nodeID, correlationID string, entry EntryMeta, at time.Time) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryAppended,
		EventID:       uuid.NewString(),
		EmittedAt:     at.UTC(),
		SessionID:     sessionID,
		MemoryNodeID:  nodeID,
		CorrelationID: correlationID,
		Entry:         &entry,
	}
}

// NewClearedEvent builds a cleared event.
func NewClearedEvent(sessionID, nodeID string, removed int, at time.Time) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryCleared,
		EventID:       uuid.NewString(),
		EmittedAt:     at.UTC(),
		SessionID:     sessionID,
		MemoryNodeID:  nodeID,
		Removed:       removed,
	}
}
