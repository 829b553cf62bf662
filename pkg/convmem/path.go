package convmem

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/history"
)

// PathView is the active path of a session together with the branches the
// path does not follow.
type PathView struct {
	SessionID string          `json:"session_id"`
	HeadID    string          `json:"head_id"`
	Messages  []*chat.Message `json:"messages"`

	// CorrelationIDs are the ids memory reads filter by, in path order.
	CorrelationIDs []string `json:"correlation_ids"`

	// Alternatives maps a path message id to its superseded siblings: other
	// children of its parent created by an edit or retry.
	Alternatives map[string][]string `json:"alternatives,omitempty"`

	Leaves []string `json:"leaves"`
}

// ActivePath resolves the active path of a session. An empty headID resolves
// from the most recent message.
func (s *Service) ActivePath(ctx context.Context, sessionID, headID string) (*PathView, error) {
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	g := history.NewGraph(messages)

	path, err := g.ActivePath(headID)
	if err != nil {
		return nil, err
	}

	view := &PathView{
		SessionID:      sessionID,
		Messages:       path,
		CorrelationIDs: history.CorrelationIDs(path, s.scheme),
		Leaves:         g.Leaves(),
	}
	if len(path) > 0 {
		view.HeadID = path[len(path)-1].ID
	}

	for _, msg := range path {
		if msg.IsRoot() {
			continue
		}
		for _, sibling := range g.Branches(*msg.ParentID) {
			if sibling == msg.ID {
				continue
			}
			if view.Alternatives == nil {
				view.Alternatives = map[string][]string{}
			}
			view.Alternatives[msg.ID] = append(view.Alternatives[msg.ID], sibling)
		}
	}

	return view, nil
}

// AppendMessage records a chat message in the session log. The log is owned
// by the chat layer; the API exposes this so it can be driven end to end.
func (s *Service) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock().UTC()
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}
