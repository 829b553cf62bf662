// Package entdriver implements storage.Driver on top of ent's SQL dialect
// layer. It is database-agnostic and is embedded by the SQLite and PostgreSQL
// drivers, which supply the opened connection and their duplicate-key check.
package entdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/storage"
	"github.com/papercomputeco/branchmem/pkg/storage/ent/migrate"
)

var (
	messageColumns = []string{"id", "session_id", "parent_id", "role", "turn_id", "created_at"}
	entryColumns   = []string{"id", "session_id", "memory_node_id", "correlation_id", "role", "content", "name", "created_at"}
	sessionColumns = []string{"id", "owner_id", "title", "last_message_at", "workflow_id", "agent_name", "provider", "credential_id"}
)

// EntDriver provides storage operations using an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver

	// IsDuplicate reports whether err is a unique or primary key violation
	// for the underlying database.
	IsDuplicate func(err error) bool
}

// New wraps an opened database handle and runs the schema migration.
func New(ctx context.Context, dialectName string, db *sql.DB, isDuplicate func(error) bool) (*EntDriver, error) {
	drv := entsql.OpenDB(dialectName, db)

	if err := migrate.Create(ctx, drv); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{
		Driver:      drv,
		IsDuplicate: isDuplicate,
	}, nil
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

// AppendMessage inserts a chat message.
func (ed *EntDriver) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	query, args := ed.builder().
		Insert(migrate.ChatMessagesTableName).
		Columns(messageColumns...).
		Values(msg.ID, msg.SessionID, nullString(msg.ParentID), msg.Role, nullString(msg.TurnID), utc(msg.CreatedAt)).
		Query()

	if _, err := ed.Driver.ExecContext(ctx, query, args...); err != nil {
		return ed.insertError("message", msg.ID, err)
	}
	return nil
}

// ListMessages returns the session's log in insertion order.
func (ed *EntDriver) ListMessages(ctx context.Context, sessionID string) ([]*chat.Message, error) {
	query, args := ed.builder().
		Select(messageColumns...).
		From(entsql.Table(migrate.ChatMessagesTableName)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("seq").
		Query()

	rows, err := ed.Driver.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*chat.Message{}
	for rows.Next() {
		var (
			m      chat.Message
			parent sql.NullString
			turn   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &parent, &m.Role, &turn, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ParentID = stringPtr(parent)
		m.TurnID = stringPtr(turn)
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

// GetSession retrieves a session by id.
func (ed *EntDriver) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	query, args := ed.builder().
		Select(sessionColumns...).
		From(entsql.Table(migrate.SessionsTableName)).
		Where(entsql.EQ("id", id)).
		Query()

	rows, err := ed.Driver.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}

	var (
		s        chat.Session
		workflow sql.NullString
	)
	if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.LastMessageAt, &workflow, &s.AgentName, &s.Provider, &s.CredentialID); err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.WorkflowID = stringPtr(workflow)

	return &s, nil
}

// CreateSession inserts a session row.
func (ed *EntDriver) CreateSession(ctx context.Context, session *chat.Session) error {
	if session == nil {
		return errors.New("cannot store nil session")
	}

	query, args := ed.builder().
		Insert(migrate.SessionsTableName).
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.OwnerID,
			session.Title,
			utc(session.LastMessageAt),
			nullString(session.WorkflowID),
			session.AgentName,
			session.Provider,
			session.CredentialID,
		).
		Query()

	if _, err := ed.Driver.ExecContext(ctx, query, args...); err != nil {
		return ed.insertError("session", session.ID, err)
	}
	return nil
}

// ListEntries returns every entry of the partition ordered by creation time.
func (ed *EntDriver) ListEntries(ctx context.Context, sessionID, nodeID string) ([]*memory.Entry, error) {
	return ed.queryEntries(ctx, entsql.And(
		entsql.EQ("session_id", sessionID),
		entsql.EQ("memory_node_id", nodeID),
	))
}

// ListEntriesByCorrelation returns the partition's entries whose correlation
// id is in ids, ordered by creation time.
func (ed *EntDriver) ListEntriesByCorrelation(ctx context.Context, sessionID, nodeID string, ids []string) ([]*memory.Entry, error) {
	if len(ids) == 0 {
		return []*memory.Entry{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return ed.queryEntries(ctx, entsql.And(
		entsql.EQ("session_id", sessionID),
		entsql.EQ("memory_node_id", nodeID),
		entsql.In("correlation_id", args...),
	))
}

// AppendEntry inserts a single memory entry.
func (ed *EntDriver) AppendEntry(ctx context.Context, entry *memory.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query, args := ed.builder().
		Insert(migrate.MemoryEntriesTableName).
		Columns(entryColumns...).
		Values(
			entry.ID,
			entry.SessionID,
			entry.MemoryNodeID,
			entry.CorrelationID,
			entry.Role,
			entry.Content,
			entry.Name,
			utc(entry.CreatedAt),
		).
		Query()

	if _, err := ed.Driver.ExecContext(ctx, query, args...); err != nil {
		return ed.insertError("memory entry", entry.ID, err)
	}
	return nil
}

// ClearEntries deletes every entry of the partition.
func (ed *EntDriver) ClearEntries(ctx context.Context, sessionID, nodeID string) (int, error) {
	query, args := ed.builder().
		Delete(migrate.MemoryEntriesTableName).
		Where(entsql.And(
			entsql.EQ("session_id", sessionID),
			entsql.EQ("memory_node_id", nodeID),
		)).
		Query()

	res, err := ed.Driver.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear memory entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared entries: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) queryEntries(ctx context.Context, where *entsql.Predicate) ([]*memory.Entry, error) {
	query, args := ed.builder().
		Select(entryColumns...).
		From(entsql.Table(migrate.MemoryEntriesTableName)).
		Where(where).
		OrderBy("created_at", "seq").
		Query()

	rows, err := ed.Driver.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory entries: %w", err)
	}
	defer rows.Close()

	entries := []*memory.Entry{}
	for rows.Next() {
		var e memory.Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MemoryNodeID, &e.CorrelationID, &e.Role, &e.Content, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory entries: %w", err)
	}
	return entries, nil
}

// insertError maps a duplicate-key failure to storage.ErrAlreadyExists.
func (ed *EntDriver) insertError(kind, id string, err error) error {
	if ed.IsDuplicate != nil && ed.IsDuplicate(err) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrAlreadyExists)
	}
	return fmt.Errorf("could not insert %s %s: %w", kind, id, err)
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
