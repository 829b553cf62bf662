package convmem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/session"
)

// Handle is the memory surface of one execution of one memory node.
// It is safe for concurrent use.
type Handle struct {
	svc    *Service
	req    Request
	turn   *TurnContext
	logger *slog.Logger
}

// OwnerID returns the owner the handle was acquired for.
func (h *Handle) OwnerID() string {
	return h.req.OwnerID
}

// SessionID returns the session the handle is bound to.
func (h *Handle) SessionID() string {
	return h.req.SessionID
}

// MemoryNodeID returns the memory node the handle is bound to.
func (h *Handle) MemoryNodeID() string {
	return h.req.MemoryNodeID
}

// Turn returns the execution's correlation key, resolving it if needed.
func (h *Handle) Turn(ctx context.Context) (Turn, error) {
	return h.turn.resolve(ctx, h.loadGraph, h.svc.newID)
}

// Memory returns the entries visible to this execution, ordered by creation.
//
// Entries are filtered by the correlation ids of the active path, with the
// execution's own key added (or removed when regenerating). When the path
// carries no ids and the execution minted its own key, there is nothing to
// scope by and the whole node history is returned.
func (h *Handle) Memory(ctx context.Context) ([]*memory.Entry, error) {
	messages, err := h.svc.store.ListMessages(ctx, h.req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if len(messages) == 0 {
		return []*memory.Entry{}, nil
	}

	g := history.NewGraph(messages)

	path, err := g.ActivePath(h.req.HeadMessageID)
	if err != nil {
		return nil, err
	}

	turn, err := h.turn.resolve(ctx, func(context.Context) (*history.Graph, error) {
		return g, nil
	}, h.svc.newID)
	if err != nil {
		return nil, err
	}

	ids := history.CorrelationIDs(path, h.svc.scheme)

	var entries []*memory.Entry
	switch {
	case len(ids) == 0 && turn.Minted:
		entries, err = h.svc.store.ListEntries(ctx, h.req.SessionID, h.req.MemoryNodeID)

	default:
		ids = history.WithAnchor(ids, turn.Key, h.turn.Regenerate)
		if len(ids) == 0 {
			return []*memory.Entry{}, nil
		}
		entries, err = h.svc.store.ListEntriesByCorrelation(ctx, h.req.SessionID, h.req.MemoryNodeID, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("listing memory entries: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.logger.Debug("memory resolved",
		"path_length", len(path),
		"correlation_ids", len(ids),
		"entries", len(entries),
		"regenerate", h.turn.Regenerate,
	)

	return entries, nil
}

// AddHumanMessage stores the execution's human input.
func (h *Handle) AddHumanMessage(ctx context.Context, content string) error {
	return h.append(ctx, memory.RoleHuman, content, "")
}

// AddAIMessage stores the execution's AI output. Tool calls requested by the
// model are encoded into the content.
func (h *Handle) AddAIMessage(ctx context.Context, content string, toolCalls ...memory.ToolCall) error {
	encoded, err := memory.EncodeAI(content, toolCalls)
	if err != nil {
		return err
	}
	return h.append(ctx, memory.RoleAI, encoded, "")
}

// AddToolMessage stores one tool invocation and its result.
func (h *Handle) AddToolMessage(ctx context.Context, toolCallID, toolName string, input, output any) error {
	encoded, err := memory.EncodeTool(toolCallID, toolName, input, output)
	if err != nil {
		return err
	}
	return h.append(ctx, memory.RoleTool, encoded, toolName)
}

func (h *Handle) append(ctx context.Context, role, content, name string) error {
	turn, err := h.Turn(ctx)
	if err != nil {
		return err
	}

	entry := &memory.Entry{
		ID:            h.svc.newID(),
		SessionID:     h.req.SessionID,
		MemoryNodeID:  h.req.MemoryNodeID,
		CorrelationID: turn.Key,
		Role:          role,
		Content:       content,
		Name:          name,
		CreatedAt:     h.svc.clock().UTC(),
	}

	if err := h.svc.store.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("appending %s entry: %w", role, err)
	}

	h.svc.publish(ctx, h.logger, eventstream.NewAppendedEvent(
		entry.SessionID,
		entry.MemoryNodeID,
		entry.CorrelationID,
		eventstream.EntryMeta{ID: entry.ID, Role: entry.Role, Name: entry.Name},
		entry.CreatedAt,
	))

	return nil
}

// Clear removes every entry of the memory node. Clearing an empty node is a
// no-op.
func (h *Handle) Clear(ctx context.Context) error {
	removed, err := h.svc.store.ClearEntries(ctx, h.req.SessionID, h.req.MemoryNodeID)
	if err != nil {
		return fmt.Errorf("clearing memory: %w", err)
	}

	h.logger.Debug("memory cleared", "removed", removed)
	h.svc.publish(ctx, h.logger, eventstream.NewClearedEvent(
		h.req.SessionID,
		h.req.MemoryNodeID,
		removed,
		h.svc.clock(),
	))

	return nil
}

// EnsureSession creates the session row if it does not exist. An empty title
// defaults to the agent name derived from the workflow.
func (h *Handle) EnsureSession(ctx context.Context, title string) error {
	agentName := h.req.Workflow.AgentName()
	if title == "" {
		title = agentName
	}

	var workflowID *string
	if h.req.Workflow.ID != "" {
		id := h.req.Workflow.ID
		workflowID = &id
	}

	return h.svc.ensurer.Ensure(ctx, session.Params{
		SessionID:  h.req.SessionID,
		OwnerID:    h.req.OwnerID,
		Title:      title,
		WorkflowID: workflowID,
		AgentName:  agentName,
	})
}

func (h *Handle) loadGraph(ctx context.Context) (*history.Graph, error) {
	messages, err := h.svc.store.ListMessages(ctx, h.req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return history.NewGraph(messages), nil
}
