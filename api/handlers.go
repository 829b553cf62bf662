package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/memory"
)

const (
	// HeaderOwnerID carries the identity of the user the session belongs to.
	HeaderOwnerID = "X-Owner-ID"

	// HeaderNodeType names the node type requesting memory. It defaults to
	// convmem.NodeTypeChatHubMemory.
	HeaderNodeType = "X-Node-Type"
)

// AppendMessageRequest is the body of POST /sessions/:session/messages.
type AppendMessageRequest struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id,omitempty"`
	Role     string  `json:"role"`
	TurnID   *string `json:"turn_id,omitempty"`
}

// EnsureSessionRequest is the body of POST /sessions/:session/nodes/:node/session.
type EnsureSessionRequest struct {
	Title        string `json:"title"`
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
	AgentName    string `json:"agent_name"`
}

// HumanRequest is the body of POST .../memory/human.
type HumanRequest struct {
	Content string `json:"content"`
}

// AIRequest is the body of POST .../memory/ai.
type AIRequest struct {
	Content   string            `json:"content"`
	ToolCalls []memory.ToolCall `json:"tool_calls,omitempty"`
}

// ToolRequest is the body of POST .../memory/tool.
type ToolRequest struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Input      any    `json:"input"`
	Output     any    `json:"output"`
}

// WriteResponse reports the correlation key a write was stored under.
type WriteResponse struct {
	Turn   string `json:"turn"`
	Minted bool   `json:"minted"`
}

// MemoryResponse contains the memory visible to one execution.
type MemoryResponse struct {
	Turn    string          `json:"turn"`
	Minted  bool            `json:"minted"`
	Entries []EntryResponse `json:"entries"`
}

// EntryResponse is a memory entry with its content decoded by role.
type EntryResponse struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	Role          string            `json:"role"`
	Name          string            `json:"name,omitempty"`
	Content       string            `json:"content"`
	ToolCalls     []memory.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID    string            `json:"tool_call_id,omitempty"`
	ToolName      string            `json:"tool_name,omitempty"`
	ToolInput     any               `json:"tool_input,omitempty"`
	ToolOutput    any               `json:"tool_output,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAppendMessage records a chat message in the session log.
func (s *Server) handleAppendMessage(c *fiber.Ctx) error {
	var req AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Role != chat.RoleHuman && req.Role != chat.RoleAI {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "role must be human or ai"})
	}

	msg := &chat.Message{
		ID:        req.ID,
		SessionID: c.Params("session"),
		ParentID:  req.ParentID,
		Role:      req.Role,
		TurnID:    req.TurnID,
	}
	if err := s.svc.AppendMessage(c.Context(), msg); err != nil {
		return s.writeError(c, "append message", err)
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// handleActivePath returns the active path of a session.
func (s *Server) handleActivePath(c *fiber.Ctx) error {
	view, err := s.svc.ActivePath(c.Context(), c.Params("session"), c.Query("head"))
	if err != nil {
		return s.writeError(c, "resolve active path", err)
	}

	return c.JSON(view)
}

// handleEnsureSession creates the session row on first use.
func (s *Server) handleEnsureSession(c *fiber.Ctx) error {
	var req EnsureSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	workflow := convmem.WorkflowDescriptor{
		ID:   req.WorkflowID,
		Name: req.WorkflowName,
	}
	if req.AgentName != "" {
		workflow.Nodes = []convmem.NodeDescriptor{{
			Type:       convmem.NodeTypeChatTrigger,
			Parameters: map[string]any{convmem.AgentNameParameter: req.AgentName},
		}}
	}

	h, err := s.acquire(c, workflow)
	if err != nil {
		return s.writeError(c, "acquire memory", err)
	}

	if err := h.EnsureSession(c.Context(), req.Title); err != nil {
		return s.writeError(c, "ensure session", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleGetMemory returns the entries visible on the active branch.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	h, err := s.acquire(c, convmem.WorkflowDescriptor{})
	if err != nil {
		return s.writeError(c, "acquire memory", err)
	}

	entries, err := h.Memory(c.Context())
	if err != nil {
		return s.writeError(c, "read memory", err)
	}

	turn, err := h.Turn(c.Context())
	if err != nil {
		return s.writeError(c, "resolve turn", err)
	}

	resp := MemoryResponse{
		Turn:    turn.Key,
		Minted:  turn.Minted,
		Entries: make([]EntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, decodeEntry(e))
	}

	return c.JSON(resp)
}

// handleClearMemory removes every entry of the memory node.
func (s *Server) handleClearMemory(c *fiber.Ctx) error {
	h, err := s.acquire(c, convmem.WorkflowDescriptor{})
	if err != nil {
		return s.writeError(c, "acquire memory", err)
	}

	if err := h.Clear(c.Context()); err != nil {
		return s.writeError(c, "clear memory", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAddHuman(c *fiber.Ctx) error {
	var req HumanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	return s.write(c, func(h *convmem.Handle) error {
		return h.AddHumanMessage(c.Context(), req.Content)
	})
}

func (s *Server) handleAddAI(c *fiber.Ctx) error {
	var req AIRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	return s.write(c, func(h *convmem.Handle) error {
		return h.AddAIMessage(c.Context(), req.Content, req.ToolCalls...)
	})
}

func (s *Server) handleAddTool(c *fiber.Ctx) error {
	var req ToolRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.ToolName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "tool_name is required"})
	}

	return s.write(c, func(h *convmem.Handle) error {
		return h.AddToolMessage(c.Context(), req.ToolCallID, req.ToolName, req.Input, req.Output)
	})
}

func (s *Server) write(c *fiber.Ctx, add func(*convmem.Handle) error) error {
	h, err := s.acquire(c, convmem.WorkflowDescriptor{})
	if err != nil {
		return s.writeError(c, "acquire memory", err)
	}

	if err := add(h); err != nil {
		return s.writeError(c, "write memory", err)
	}

	turn, err := h.Turn(c.Context())
	if err != nil {
		return s.writeError(c, "resolve turn", err)
	}

	return c.Status(fiber.StatusCreated).JSON(WriteResponse{Turn: turn.Key, Minted: turn.Minted})
}

// acquire builds a memory handle from the route params, the query string
// (head, turn, regenerate) and the identity headers.
func (s *Server) acquire(c *fiber.Ctx, workflow convmem.WorkflowDescriptor) (*convmem.Handle, error) {
	nodeType := c.Get(HeaderNodeType)
	if nodeType == "" {
		nodeType = convmem.NodeTypeChatHubMemory
	}

	return s.svc.Acquire(c.Context(), convmem.Request{
		Workflow:      workflow,
		Node:          convmem.NodeDescriptor{Name: "api", Type: nodeType},
		SessionID:     c.Params("session"),
		MemoryNodeID:  c.Params("node"),
		HeadMessageID: c.Query("head"),
		TurnID:        c.Query("turn"),
		Regenerate:    c.QueryBool("regenerate"),
		OwnerID:       c.Get(HeaderOwnerID),
	})
}

func decodeEntry(e *memory.Entry) EntryResponse {
	resp := EntryResponse{
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Role:          e.Role,
		Name:          e.Name,
		Content:       e.Content,
		CreatedAt:     e.CreatedAt,
	}

	switch e.Role {
	case memory.RoleAI:
		payload := memory.DecodeAI(e.Content)
		resp.Content = payload.Text
		resp.ToolCalls = payload.ToolCalls
	case memory.RoleTool:
		payload := memory.DecodeTool(e.Content)
		resp.ToolName = payload.ToolName
		if payload.Structured {
			resp.Content = ""
			resp.ToolCallID = payload.ToolCallID
			resp.ToolInput = payload.Input
			resp.ToolOutput = payload.Output
		}
	}

	return resp
}
