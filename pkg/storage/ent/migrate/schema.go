// Package migrate declares the branchmem tables and applies them with ent's
// auto-migration. Migrations are append-only: new tables, columns and indexes.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	ChatMessagesTableName  = "chat_messages"
	MemoryEntriesTableName = "memory_entries"
	SessionsTableName      = "chat_sessions"
)

var (
	// ChatMessagesColumns holds the columns for the "chat_messages" table.
	// seq is a surrogate key that preserves insertion order for head tie-breaks.
	ChatMessagesColumns = []*schema.Column{
		{Name: "seq", Type: field.TypeInt64, Increment: true},
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "parent_id", Type: field.TypeString, Nullable: true},
		{Name: "role", Type: field.TypeString},
		{Name: "turn_id", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// ChatMessagesTable holds the schema information for the "chat_messages" table.
	ChatMessagesTable = &schema.Table{
		Name:       ChatMessagesTableName,
		Columns:    ChatMessagesColumns,
		PrimaryKey: []*schema.Column{ChatMessagesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "chatmessage_session_id",
				Unique:  false,
				Columns: []*schema.Column{ChatMessagesColumns[2]},
			},
		},
	}

	// MemoryEntriesColumns holds the columns for the "memory_entries" table.
	MemoryEntriesColumns = []*schema.Column{
		{Name: "seq", Type: field.TypeInt64, Increment: true},
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "memory_node_id", Type: field.TypeString},
		{Name: "correlation_id", Type: field.TypeString},
		{Name: "role", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "name", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	// MemoryEntriesTable holds the schema information for the "memory_entries" table.
	MemoryEntriesTable = &schema.Table{
		Name:       MemoryEntriesTableName,
		Columns:    MemoryEntriesColumns,
		PrimaryKey: []*schema.Column{MemoryEntriesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "memoryentry_session_id_memory_node_id_correlation_id",
				Unique:  false,
				Columns: []*schema.Column{MemoryEntriesColumns[2], MemoryEntriesColumns[3], MemoryEntriesColumns[4]},
			},
			{
				Name:    "memoryentry_session_id_memory_node_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{MemoryEntriesColumns[2], MemoryEntriesColumns[3], MemoryEntriesColumns[8]},
			},
		},
	}

	// SessionsColumns holds the columns for the "chat_sessions" table.
	SessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "owner_id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "last_message_at", Type: field.TypeTime},
		{Name: "workflow_id", Type: field.TypeString, Nullable: true},
		{Name: "agent_name", Type: field.TypeString, Default: ""},
		{Name: "provider", Type: field.TypeString, Default: ""},
		{Name: "credential_id", Type: field.TypeString, Default: ""},
	}
	// SessionsTable holds the schema information for the "chat_sessions" table.
	SessionsTable = &schema.Table{
		Name:       SessionsTableName,
		Columns:    SessionsColumns,
		PrimaryKey: []*schema.Column{SessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "chatsession_owner_id",
				Unique:  false,
				Columns: []*schema.Column{SessionsColumns[1]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ChatMessagesTable,
		MemoryEntriesTable,
		SessionsTable,
	}
)

// Create runs ent's auto-migration for every branchmem table.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("creating migrate: %w", err)
	}

	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("running migration: %w", err)
	}

	return nil
}
