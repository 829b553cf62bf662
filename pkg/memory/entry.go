package memory

import "time"

// Entry roles.
const (
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleTool   = "tool"
	RoleSystem = "system"
)

// Entry is one piece of stored context for one memory node.
type Entry struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	MemoryNodeID string `json:"memory_node_id"`

	// CorrelationID is the turn id, or the parent human message id under the
	// parent-message scheme.
	CorrelationID string `json:"correlation_id"`

	Role string `json:"role"`

	// Content is opaque. Structured payloads (tool calls, tool results) are
	// JSON encoded by the writer, see EncodeAI and EncodeTool.
	Content string `json:"content"`

	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields every store requires.
func (e *Entry) Validate() error {
	switch {
	case e == nil:
		return ErrNilEntry
	case e.ID == "":
		return InvalidEntryError{Field: "id"}
	case e.SessionID == "":
		return InvalidEntryError{Field: "session_id"}
	case e.MemoryNodeID == "":
		return InvalidEntryError{Field: "memory_node_id"}
	case e.CorrelationID == "":
		return InvalidEntryError{Field: "correlation_id"}
	}

	switch e.Role {
	case RoleHuman, RoleAI, RoleTool, RoleSystem:
		return nil
	default:
		return InvalidEntryError{Field: "role"}
	}
}
