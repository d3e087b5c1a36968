// Package postgres connects to a hosted PostgreSQL database as a nxt-shelf
// table backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" driver

	"github.com/banux/nxt-shelf/internal/backend/table"
)

// Open connects to dsn, verifies the connection, applies the schema and returns the backend.
func Open(ctx context.Context, dsn string) (*table.Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewWithDB(ctx, db)
}

// NewWithDB wraps an already-open handle and applies the schema.
func NewWithDB(ctx context.Context, db *sql.DB) (*table.Backend, error) {
	b := table.New(db, table.Postgres)
	if err := b.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}
