// Package inmemory provides a storage.Driver held entirely in process memory.
// It is the default backend for local development and the reference
// implementation used by tests.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

// partition keys memory entries by (session, memory node).
type partition struct {
	sessionID string
	nodeID    string
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	// messages holds each session's chat log in insertion order
	messages   map[string][]*chat.Message
	messageIDs map[string]struct{}

	// entries holds each partition's memory entries in insertion order
	entries  map[partition][]*memory.Entry
	entryIDs map[string]struct{}

	sessions map[string]*chat.Session
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		messages:   make(map[string][]*chat.Message),
		messageIDs: make(map[string]struct{}),
		entries:    make(map[partition][]*memory.Entry),
		entryIDs:   make(map[string]struct{}),
		sessions:   make(map[string]*chat.Session),
	}
}

// AppendMessage adds a message to its session's log.
func (d *Driver) AppendMessage(_ context.Context, msg *chat.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}
	if msg.ID == "" || msg.SessionID == "" {
		return errors.New("message requires id and session id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messageIDs[msg.ID]; ok {
		return fmt.Errorf("message %s: %w", msg.ID, storage.ErrAlreadyExists)
	}

	m := *msg
	d.messageIDs[m.ID] = struct{}{}
	d.messages[m.SessionID] = append(d.messages[m.SessionID], &m)
	return nil
}

// ListMessages returns the session's log in insertion order.
func (d *Driver) ListMessages(_ context.Context, sessionID string) ([]*chat.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.messages[sessionID]
	result := make([]*chat.Message, 0, len(log))
	for _, msg := range log {
		m := *msg
		result = append(result, &m)
	}
	return result, nil
}

// GetSession retrieves a session by id.
func (d *Driver) GetSession(_ context.Context, id string) (*chat.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}

	session := *s
	return &session, nil
}

// CreateSession inserts a session, failing with storage.ErrAlreadyExists when
// the id is taken.
func (d *Driver) CreateSession(_ context.Context, session *chat.Session) error {
	if session == nil {
		return errors.New("cannot store nil session")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, storage.ErrAlreadyExists)
	}

	s := *session
	d.sessions[s.ID] = &s
	return nil
}

// ListEntries returns every entry of the partition ordered by creation time.
func (d *Driver) ListEntries(_ context.Context, sessionID, nodeID string) ([]*memory.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return sortedCopy(d.entries[partition{sessionID, nodeID}], nil), nil
}

// ListEntriesByCorrelation returns the partition's entries whose correlation
// id is one of ids, ordered by creation time.
func (d *Driver) ListEntriesByCorrelation(_ context.Context, sessionID, nodeID string, ids []string) ([]*memory.Entry, error) {
	if len(ids) == 0 {
		return []*memory.Entry{}, nil
	}

	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return sortedCopy(d.entries[partition{sessionID, nodeID}], keep), nil
}

// AppendEntry inserts a memory entry.
func (d *Driver) AppendEntry(_ context.Context, entry *memory.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entryIDs[entry.ID]; ok {
		return fmt.Errorf("memory entry %s: %w", entry.ID, storage.ErrAlreadyExists)
	}

	e := *entry
	key := partition{e.SessionID, e.MemoryNodeID}
	d.entryIDs[e.ID] = struct{}{}
	d.entries[key] = append(d.entries[key], &e)
	return nil
}

// ClearEntries removes every entry of the partition.
func (d *Driver) ClearEntries(_ context.Context, sessionID, nodeID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := partition{sessionID, nodeID}
	removed := d.entries[key]
	for _, e := range removed {
		delete(d.entryIDs, e.ID)
	}
	delete(d.entries, key)

	return len(removed), nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// sortedCopy copies entries (optionally filtered by correlation id) and
// stably sorts them by creation time, keeping insertion order for ties.
func sortedCopy(entries []*memory.Entry, keep map[string]struct{}) []*memory.Entry {
	result := make([]*memory.Entry, 0, len(entries))
	for _, entry := range entries {
		if keep != nil {
			if _, ok := keep[entry.CorrelationID]; !ok {
				continue
			}
		}
		e := *entry
		result = append(result, &e)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
