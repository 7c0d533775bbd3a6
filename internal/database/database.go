package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/go-libsql"
)

// MemoryPath opens a private in-memory database, used by tests.
const MemoryPath = ":memory:"

// pragmas are applied to every database the tour opens, in order.
// busy_timeout must precede journal_mode: switching to WAL takes the file
// lock, which a recently closed connection may still hold.
var pragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Open opens the tour database at path through libSQL, creating its parent
// directory first. The tour documents and the quest kv table share the file.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// configure runs the pragmas through QueryContext: libSQL refuses Exec for
// pragmas that return a row.
func configure(ctx context.Context, db *sql.DB) error {
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			return fmt.Errorf("executing %s: %w", p, err)
		}
		for rows.Next() {
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("executing %s: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}
