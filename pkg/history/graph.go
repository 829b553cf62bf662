// Package history rebuilds the branching conversation tree from a session's
// flat message log, resolves the active path through it and derives the
// correlation ids memory lookups are scoped by.
//
// Edits and retries never delete messages: they add a sibling under the same
// parent. Which branch is "live" is decided only by the head a path is
// resolved from, so superseded messages drop out by being unreachable.
package history

import (
	"github.com/papercomputeco/branchmem/pkg/chat"
)

// noParent marks a root slot in the parent index.
const noParent = -1

// Graph is an arena-style view of one session's message tree. Messages are
// stored in log order and relationships are slice indexes, so walking the
// tree never chases pointers through shared objects.
type Graph struct {
	messages []*chat.Message

	// index provides O(1) lookup from message id to arena slot
	index map[string]int

	// parents holds the arena slot of each message's parent or noParent
	parents []int

	// children holds the arena slots of each message's children in log order
	children [][]int

	// faults holds the corruption recorded for a slot, raised only when a
	// walk reaches it
	faults []error
}

// NewGraph indexes the given messages. The slice is expected in insertion
// order, as returned by chat.MessageLog.
//
// Corrupt rows do not fail construction. A repeated id marks the slot that
// owns the id, and a parent id outside the log marks the child; ActivePath
// reports a *StructuralError only when its walk reaches a marked slot, so an
// abandoned branch cannot break the live one.
func NewGraph(messages []*chat.Message) *Graph {
	g := &Graph{
		messages: make([]*chat.Message, 0, len(messages)),
		index:    make(map[string]int, len(messages)),
	}

	var duplicates []int
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if slot, ok := g.index[msg.ID]; ok {
			duplicates = append(duplicates, slot)
			continue
		}
		g.index[msg.ID] = len(g.messages)
		g.messages = append(g.messages, msg)
	}

	g.parents = make([]int, len(g.messages))
	g.children = make([][]int, len(g.messages))
	g.faults = make([]error, len(g.messages))
	for _, slot := range duplicates {
		g.faults[slot] = ErrDuplicateMessage
	}

	for i, msg := range g.messages {
		g.parents[i] = noParent
		if msg.IsRoot() {
			continue
		}

		p, ok := g.index[*msg.ParentID]
		if !ok {
			if g.faults[i] == nil {
				g.faults[i] = ErrDanglingParent
			}
			continue
		}
		g.parents[i] = p
		g.children[p] = append(g.children[p], i)
	}

	return g
}

// Size returns the number of messages in the graph.
func (g *Graph) Size() int {
	return len(g.messages)
}

// Get returns the message with the given id, or nil if not found.
func (g *Graph) Get(id string) *chat.Message {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.messages[i]
}

// Head returns the id of the most recent message: greatest CreatedAt, with
// ties going to the later log row. Returns "" for an empty graph.
func (g *Graph) Head() string {
	head := -1
	for i, msg := range g.messages {
		if head == -1 || !msg.CreatedAt.Before(g.messages[head].CreatedAt) {
			head = i
		}
	}

	if head == -1 {
		return ""
	}
	return g.messages[head].ID
}

// Branches returns the ids of the direct children of the given message.
// More than one child means the message was edited or retried.
func (g *Graph) Branches(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(g.children[i]))
	for _, c := range g.children[i] {
		ids = append(ids, g.messages[c].ID)
	}
	return ids
}

// Leaves returns the ids of all messages without children, in log order.
func (g *Graph) Leaves() []string {
	leaves := []string{}
	for i, msg := range g.messages {
		if len(g.children[i]) == 0 {
			leaves = append(leaves, msg.ID)
		}
	}
	return leaves
}

// ActivePath returns the messages from the tree root down to headID,
// inclusive. An empty headID resolves from Head().
//
// The walk is bounded by the number of messages: revisiting a slot means the
// parent chain is cyclic and a *StructuralError wrapping ErrCycle is returned.
// Reaching a slot recorded as corrupt by NewGraph returns a *StructuralError
// wrapping ErrDuplicateMessage or ErrDanglingParent.
func (g *Graph) ActivePath(headID string) ([]*chat.Message, error) {
	if len(g.messages) == 0 {
		return []*chat.Message{}, nil
	}

	if headID == "" {
		headID = g.Head()
	}

	current, ok := g.index[headID]
	if !ok {
		return nil, &StructuralError{MessageID: headID, Err: ErrUnknownHead}
	}

	visited := make([]bool, len(g.messages))
	path := []*chat.Message{}
	for current != noParent {
		if visited[current] || len(path) >= len(g.messages) {
			return nil, &StructuralError{MessageID: g.messages[current].ID, Err: ErrCycle}
		}
		visited[current] = true
		if err := g.faults[current]; err != nil {
			return nil, &StructuralError{MessageID: g.messages[current].ID, Err: err}
		}

		path = append(path, g.messages[current])
		current = g.parents[current]
	}

	// Walked head-first, return root-first
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, nil
}

// ResolveActivePath builds a graph from messages and resolves the active path
// from headID in one step.
func ResolveActivePath(messages []*chat.Message, headID string) ([]*chat.Message, error) {
	return NewGraph(messages).ActivePath(headID)
}
