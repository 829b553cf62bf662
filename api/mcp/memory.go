package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/branchmem/pkg/convmem"
)

var (
	memoryGetToolName    = "memory_get"
	memoryGetDescription = "Read the conversation memory of a memory node, scoped to the active branch of a chat session. Entries written on edited or retried branches are excluded. Set regenerate to hide the entries of the turn being regenerated."
)

// MemoryGetInput represents the input arguments for the MCP memory_get tool.
type MemoryGetInput struct {
	SessionID     string `json:"session_id" jsonschema:"the chat session id"`
	MemoryNodeID  string `json:"memory_node_id" jsonschema:"the memory node whose entries to read"`
	OwnerID       string `json:"owner_id" jsonschema:"the user the session belongs to"`
	HeadMessageID string `json:"head_message_id,omitempty" jsonschema:"the head of the active path, defaults to the latest message"`
	TurnID        string `json:"turn_id,omitempty" jsonschema:"the turn of the current execution"`
	Regenerate    bool   `json:"regenerate,omitempty" jsonschema:"exclude the current turn's own entries"`
}

// MemoryEntry is one memory entry in tool output.
type MemoryEntry struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	Name          string `json:"name,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// MemoryGetOutput represents the structured output of memory_get.
type MemoryGetOutput struct {
	Turn    string        `json:"turn"`
	Minted  bool          `json:"minted"`
	Entries []MemoryEntry `json:"entries"`
}

func (s *Server) handleMemoryGet(ctx context.Context, _ *mcp.CallToolRequest, input MemoryGetInput) (*mcp.CallToolResult, MemoryGetOutput, error) {
	if input.SessionID == "" || input.MemoryNodeID == "" {
		return toolError("session_id and memory_node_id are required"), MemoryGetOutput{}, nil
	}

	h, err := s.config.Service.Acquire(ctx, convmem.Request{
		Node:          convmem.NodeDescriptor{Name: "mcp", Type: convmem.NodeTypeChatHubMemory},
		SessionID:     input.SessionID,
		MemoryNodeID:  input.MemoryNodeID,
		HeadMessageID: input.HeadMessageID,
		TurnID:        input.TurnID,
		Regenerate:    input.Regenerate,
		OwnerID:       input.OwnerID,
	})
	if err != nil {
		return toolError(err.Error()), MemoryGetOutput{}, nil
	}

	entries, err := h.Memory(ctx)
	if err != nil {
		s.config.Logger.Error("mcp memory_get failed",
			"session_id", input.SessionID,
			"error", err,
		)
		return toolError(fmt.Sprintf("Memory read failed: %v", err)), MemoryGetOutput{}, nil
	}

	turn, err := h.Turn(ctx)
	if err != nil {
		return toolError(fmt.Sprintf("Turn resolution failed: %v", err)), MemoryGetOutput{}, nil
	}

	output := MemoryGetOutput{
		Turn:    turn.Key,
		Minted:  turn.Minted,
		Entries: make([]MemoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		output.Entries = append(output.Entries, MemoryEntry{
			ID:            e.ID,
			CorrelationID: e.CorrelationID,
			Role:          e.Role,
			Content:       e.Content,
			Name:          e.Name,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	return textResult(output)
}

func textResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
