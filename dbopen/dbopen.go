// Package dbopen opens the SQLite database behind the snapshot store.
//
// Connections run with foreign keys on, WAL journaling, synchronous=NORMAL
// and a busy timeout of ten seconds unless WithBusyTimeout says otherwise.
// Tests use OpenMemory.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type options struct {
	busyMS  int
	mkdir   bool
	schemas []string
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(o *options) { o.busyMS = ms }
}

// WithMkdirAll creates the directory holding the database file.
func WithMkdirAll() Option {
	return func(o *options) { o.mkdir = true }
}

// WithSchema adds DDL run after the pragmas. Schemas run in the order given.
func WithSchema(ddl string) Option {
	return func(o *options) { o.schemas = append(o.schemas, ddl) }
}

func (o *options) statements() []string {
	stmts := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyMS),
	}
	return append(stmts, o.schemas...)
}

// Open opens path with the pure-Go "sqlite" driver, applies the pragmas and
// schemas, and pings the database.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := &options{busyMS: 10_000}
	for _, fn := range opts {
		fn(o)
	}

	if o.mkdir && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := setup(db, o.statements()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("dbopen: exec %.40q: %w", stmt, err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}

// OpenMemory opens a private in-memory database and closes it when the test
// ends. The pool holds a single connection since every new connection to
// ":memory:" would see an empty database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
