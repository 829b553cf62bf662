package convmem

import (
	"context"
	"sync"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/history"
)

// Turn is the resolved correlation key of one execution.
type Turn struct {
	Key string

	// Minted is true when no hint identified the execution and a fresh key
	// was generated.
	Minted bool
}

// TurnContext is the request-scoped correlation state of a handle. The key is
// resolved on first use and memoized, so every write of one execution shares
// it.
type TurnContext struct {
	Scheme     history.Scheme
	HeadID     string
	TurnHint   string
	Regenerate bool

	mu       sync.Mutex
	resolved bool
	turn     Turn
}

// graphLoader returns the session's message graph.
type graphLoader func(ctx context.Context) (*history.Graph, error)

// Resolved returns the memoized turn and whether resolution already happened.
func (tc *TurnContext) Resolved() (Turn, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.turn, tc.resolved
}

// resolve returns the memoized turn, resolving it on the first call. Failed
// resolutions are not memoized.
func (tc *TurnContext) resolve(ctx context.Context, load graphLoader, newID func() string) (Turn, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.resolved {
		return tc.turn, nil
	}

	var key string
	switch tc.Scheme {
	case history.SchemeParentMessage:
		g, err := load(ctx)
		if err != nil {
			return Turn{}, err
		}
		key, err = tc.parentKey(g)
		if err != nil {
			return Turn{}, err
		}
	default:
		key = tc.TurnHint
	}

	tc.turn = Turn{Key: key}
	if key == "" {
		tc.turn = Turn{Key: newID(), Minted: true}
	}
	tc.resolved = true

	return tc.turn, nil
}

// parentKey is the head hint when it names a human message, otherwise the
// last human message on the active path.
func (tc *TurnContext) parentKey(g *history.Graph) (string, error) {
	if msg := g.Get(tc.HeadID); msg != nil && msg.Role == chat.RoleHuman {
		return msg.ID, nil
	}

	path, err := g.ActivePath(tc.HeadID)
	if err != nil {
		return "", err
	}

	for i := len(path) - 1; i >= 0; i-- {
		if path[i].Role == chat.RoleHuman {
			return path[i].ID, nil
		}
	}
	return "", nil
}
