package history

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/branchmem/pkg/chat"
)

// Scheme selects which message attribute correlates memory entries to the
// active path.
type Scheme string

const (
	// SchemeTurn keys memory by the turn id carried on AI messages. The turn
	// id is minted before the execution that writes the memory.
	SchemeTurn Scheme = "turn"

	// SchemeParentMessage keys memory by the id of the human message that
	// started the execution.
	SchemeParentMessage Scheme = "parent_message"
)

// ParseScheme parses a configured scheme name. The empty string selects SchemeTurn.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeTurn:
		return SchemeTurn, nil
	case SchemeParentMessage:
		return SchemeParentMessage, nil
	default:
		return "", fmt.Errorf("unknown correlation scheme: %q (available: %s, %s)", s, SchemeTurn, SchemeParentMessage)
	}
}

// Qualifies reports whether msg contributes a correlation id under the scheme.
func (s Scheme) Qualifies(msg *chat.Message) bool {
	return s.key(msg) != ""
}

func (s Scheme) key(msg *chat.Message) string {
	if msg == nil {
		return ""
	}

	switch s {
	case SchemeParentMessage:
		if msg.Role == chat.RoleHuman {
			return msg.ID
		}
	default:
		if msg.Role == chat.RoleAI {
			return msg.Turn()
		}
	}

	return ""
}

// CorrelationIDs collects the ordered, de-duplicated correlation ids of the
// active path. A path with no qualifying messages yields an empty slice.
func CorrelationIDs(path []*chat.Message, scheme Scheme) []string {
	ids := []string{}
	seen := make(map[string]struct{}, len(path))

	for _, msg := range path {
		key := scheme.key(msg)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ids = append(ids, key)
	}

	return ids
}

// WithAnchor folds the current execution's own key into ids.
//
// When regenerating, the anchor is removed so memory written by the turn being
// replaced does not leak into its own context. Otherwise the anchor is
// appended when missing so the current input is always part of the filter.
// The input slice is not modified.
func WithAnchor(ids []string, anchor string, regenerate bool) []string {
	out := make([]string, 0, len(ids)+1)
	found := false

	for _, id := range ids {
		if id == anchor && anchor != "" {
			found = true
			if regenerate {
				continue
			}
		}
		out = append(out, id)
	}

	if anchor != "" && !found && !regenerate {
		out = append(out, anchor)
	}

	return out
}
