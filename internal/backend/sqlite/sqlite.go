// Package sqlite opens a SQLite database as a nxt-shelf table backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banux/nxt-shelf/internal/backend/table"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

const dbFilename = "shelf.db"

// Open opens (or creates) {dir}/shelf.db, applies the schema and returns the backend.
func Open(ctx context.Context, dir string) (*table.Backend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, dbFilename)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", dbPath, err)
	}

	// WAL mode for concurrent reads.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	b := table.New(db, table.SQLite)
	if err := b.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}
