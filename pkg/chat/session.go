package chat

import (
	"context"
	"time"
)

// Session is the conversation session record.
type Session struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"last_message_at"`
	WorkflowID    *string   `json:"workflow_id,omitempty"`
	AgentName     string    `json:"agent_name"`

	// Provider and CredentialID are chat-layer metadata carried on the row.
	Provider     string `json:"provider,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
}

// SessionStore persists session rows.
type SessionStore interface {
	// GetSession returns the session with the given id or a not-found error.
	GetSession(ctx context.Context, id string) (*Session, error)

	// CreateSession inserts a new session. Inserting an id that already exists
	// fails with an already-exists error rather than overwriting the row.
	CreateSession(ctx context.Context, session *Session) error
}
