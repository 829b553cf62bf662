// Package sqlite provides a SQLite-backed storage driver using ent's SQL layer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	sqlite3 "github.com/mattn/go-sqlite3"

	entdriver "github.com/papercomputeco/branchmem/pkg/storage/ent/driver"
)

const memoryDSN = ":memory:"

// connParams are applied to every pooled connection through the DSN.
// Foreign keys are required by ent's SQLite migration.
const connParams = "_fk=1&_busy_timeout=5000"

// SQLiteDriver implements storage.Driver using SQLite via the ent driver
type SQLiteDriver struct {
	*entdriver.EntDriver
}

// NewSQLiteDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database
	if dbPath == memoryDSN {
		db.SetMaxOpenConns(1)
	}

	ed, err := entdriver.New(ctx, dialect.SQLite, db, IsDuplicate)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{EntDriver: ed}, nil
}

// DSN appends the connection parameters to dbPath. File databases also run
// in WAL mode so readers do not block the writer.
func DSN(dbPath string) string {
	params := connParams
	if dbPath != memoryDSN {
		params += "&_journal_mode=WAL"
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}

	return dbPath + sep + params
}

// IsDuplicate reports whether err is a SQLite primary key or unique
// constraint violation.
func IsDuplicate(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
