package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	activePathToolName    = "active_path"
	activePathDescription = "Resolve the active path of a branching chat session: the messages from the root to the head, the correlation ids memory is filtered by, and the sibling branches left behind by edits and retries."
)

// ActivePathInput represents the input arguments for the MCP active_path tool.
type ActivePathInput struct {
	SessionID     string `json:"session_id" jsonschema:"the chat session id"`
	HeadMessageID string `json:"head_message_id,omitempty" jsonschema:"the head message, defaults to the latest message"`
}

// PathMessage is one message of the active path in tool output.
type PathMessage struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Role      string `json:"role"`
	TurnID    string `json:"turn_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ActivePathOutput represents the structured output of active_path.
type ActivePathOutput struct {
	HeadID         string              `json:"head_id"`
	Messages       []PathMessage       `json:"messages"`
	CorrelationIDs []string            `json:"correlation_ids"`
	Alternatives   map[string][]string `json:"alternatives"`
	Leaves         []string            `json:"leaves"`
}

func (s *Server) handleActivePath(ctx context.Context, _ *mcp.CallToolRequest, input ActivePathInput) (*mcp.CallToolResult, ActivePathOutput, error) {
	if input.SessionID == "" {
		return toolError("session_id is required"), ActivePathOutput{}, nil
	}

	view, err := s.config.Service.ActivePath(ctx, input.SessionID, input.HeadMessageID)
	if err != nil {
		return toolError(fmt.Sprintf("Path resolution failed: %v", err)), ActivePathOutput{}, nil
	}

	output := ActivePathOutput{
		HeadID:         view.HeadID,
		Messages:       make([]PathMessage, 0, len(view.Messages)),
		CorrelationIDs: view.CorrelationIDs,
		Alternatives:   view.Alternatives,
		Leaves:         view.Leaves,
	}
	if output.Alternatives == nil {
		output.Alternatives = map[string][]string{}
	}
	if output.CorrelationIDs == nil {
		output.CorrelationIDs = []string{}
	}
	if output.Leaves == nil {
		output.Leaves = []string{}
	}

	for _, m := range view.Messages {
		pm := PathMessage{
			ID:        m.ID,
			Role:      m.Role,
			TurnID:    m.Turn(),
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
		if !m.IsRoot() {
			pm.ParentID = *m.ParentID
		}
		output.Messages = append(output.Messages, pm)
	}

	return textResult(output)
}
