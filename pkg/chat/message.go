// Package chat holds the conversation records produced by the surrounding chat
// layer: the append-only message log and the session rows that own it.
package chat

import (
	"context"
	"time"
)

// Message roles understood by the memory resolver. Other roles may exist in
// the chat layer and are carried through untouched.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is one node in a session's conversation tree.
type Message struct {
	// ID is the unique identifier of the message.
	ID string `json:"id"`

	// SessionID is the owning conversation.
	SessionID string `json:"session_id"`

	// ParentID links to the message this one replies to or replaces.
	// This will be nil for the first message of a session.
	ParentID *string `json:"parent_id,omitempty"`

	// Role is "human" or "ai" for messages the resolver cares about.
	Role string `json:"role"`

	// TurnID is the correlation identifier minted before the execution that
	// produced this message. Nil for legacy or manual flows.
	TurnID *string `json:"turn_id,omitempty"`

	// CreatedAt is only used as a tie-break for "most recent" when no head is given.
	CreatedAt time.Time `json:"created_at"`
}

// IsRoot reports whether the message has no parent.
func (m *Message) IsRoot() bool {
	return m.ParentID == nil || *m.ParentID == ""
}

// Turn returns the message turn id or the empty string.
func (m *Message) Turn() string {
	if m.TurnID == nil {
		return ""
	}
	return *m.TurnID
}

// MessageLog is the read side of the chat message table. Messages are owned by
// the chat layer; the memory core never mutates them.
type MessageLog interface {
	// ListMessages returns every message for the session in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
}

// MessageWriter appends to the chat message table. Only the chat layer
// (and tests seeding conversations) write messages.
type MessageWriter interface {
	AppendMessage(ctx context.Context, msg *Message) error
}
