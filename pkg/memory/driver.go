// Package memory defines the per-node conversational memory kept alongside a
// chat session.
//
// Memory is partitioned by (session, memory node) so several memory-holding
// components in one workflow never see each other's entries. Within a
// partition each entry carries a correlation id (a turn id, or the id of the
// human message that started the execution) that the resolver filters by.
//
// The [Store] interface is the query contract required from a persistence
// backend; implementations live under pkg/storage.
package memory

import (
	"context"
)

// Store is the keyed append log of memory entries.
type Store interface {
	// ListEntries returns every entry for the (session, node) pair ordered by
	// creation time. Used when no correlation ids can be resolved and the
	// resolver degrades to whole-node history.
	ListEntries(ctx context.Context, sessionID, nodeID string) ([]*Entry, error)

	// ListEntriesByCorrelation returns entries whose correlation id is in ids,
	// in creation order across all ids.
	ListEntriesByCorrelation(ctx context.Context, sessionID, nodeID string, ids []string) ([]*Entry, error)

	// AppendEntry inserts a single entry. A duplicate id is reported as an
	// error, never silently dropped.
	AppendEntry(ctx context.Context, entry *Entry) error

	// ClearEntries deletes every entry for the pair and returns how many were
	// removed. Clearing an empty partition is a no-op.
	ClearEntries(ctx context.Context, sessionID, nodeID string) (int, error)
}
