package convmem

import "strings"

const (
	// NodeTypeChatHubMemory is the only node type allowed to acquire a handle.
	NodeTypeChatHubMemory = "memory.chatHub"

	// NodeTypeChatTrigger is the trigger node whose parameters name the agent.
	NodeTypeChatTrigger = "chat.trigger"

	// AgentNameParameter is the chat trigger parameter holding the agent name.
	AgentNameParameter = "agentName"

	// DefaultAgentName is used when neither the chat trigger nor the workflow
	// provide a name.
	DefaultAgentName = "AI Agent"
)

var allowedNodeTypes = map[string]struct{}{
	NodeTypeChatHubMemory: {},
}

// NodeAllowed reports whether nodeType may acquire conversation memory.
func NodeAllowed(nodeType string) bool {
	_, ok := allowedNodeTypes[nodeType]
	return ok
}

// WorkflowDescriptor is the part of the host workflow the service reads.
type WorkflowDescriptor struct {
	ID    string
	Name  string
	Nodes []NodeDescriptor
}

// NodeDescriptor describes one workflow node.
type NodeDescriptor struct {
	Name       string
	Type       string
	Parameters map[string]any
}

// AgentName derives the agent name: the chat trigger's agentName parameter,
// then the workflow name, then DefaultAgentName.
func (w WorkflowDescriptor) AgentName() string {
	for _, node := range w.Nodes {
		if node.Type != NodeTypeChatTrigger {
			continue
		}
		if name, ok := node.Parameters[AgentNameParameter].(string); ok {
			if name = strings.TrimSpace(name); name != "" {
				return name
			}
		}
	}

	if name := strings.TrimSpace(w.Name); name != "" {
		return name
	}

	return DefaultAgentName
}

// Request identifies the memory partition and execution a handle is bound to.
type Request struct {
	Workflow WorkflowDescriptor
	Node     NodeDescriptor

	SessionID    string
	MemoryNodeID string

	// HeadMessageID selects the head of the active path. Empty means the most
	// recent message. Under the parent-message scheme it also anchors the
	// execution when it names a human message.
	HeadMessageID string

	// TurnID is the turn minted by the host before this execution. Empty for
	// manual or out-of-band executions.
	TurnID string

	// Regenerate excludes the execution's own correlation key from reads.
	Regenerate bool

	OwnerID string
}

func (r Request) validate() error {
	if !NodeAllowed(r.Node.Type) {
		return AuthorizationError{NodeType: r.Node.Type}
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return ErrNoOwner
	}
	if r.SessionID == "" {
		return ConfigurationError{Reason: "session id is required"}
	}
	if r.MemoryNodeID == "" {
		return ConfigurationError{Reason: "memory node id is required"}
	}
	return nil
}
