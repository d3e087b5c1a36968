// Package table implements a catalog backend over a relational "books" table.
// Column names use snake_case while the Book model uses camelCase JSON names;
// the mapping between the two lives entirely in this package.
package table

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string

	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder func(n int) string
}

var (
	// SQLite uses "?" placeholders.
	SQLite = Dialect{Name: "sqlite", Placeholder: func(int) string { return "?" }}

	// Postgres uses "$n" placeholders.
	Postgres = Dialect{Name: "postgres", Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// column maps a Book field to its table column.
type column struct {
	field string // JSON field name on catalog.Book
	name  string // column name in the books table
}

// columns is the field-name mapping, in table order.
var columns = []column{
	{"id", "id"},
	{"title", "title"},
	{"author", "author"},
	{"genre", "genre"},
	{"fictionType", "fiction_type"},
	{"difficulty", "difficulty"},
	{"status", "status"},
	{"formats", "formats"},
	{"isbn", "isbn"},
	{"publicationDate", "publication_date"},
	{"acquiredDate", "acquired_date"},
	{"coverUrl", "cover_url"},
	{"notes", "notes"},
	{"addedAt", "added_at"},
}

// ColumnFor returns the column name for a Book JSON field name.
func ColumnFor(field string) (string, bool) {
	for _, c := range columns {
		if c.field == field {
			return c.name, true
		}
	}
	return "", false
}

func columnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// Backend reads and writes books in a SQL table.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// New returns a Backend over db. The caller owns db's lifecycle unless Close is called.
func New(db *sql.DB, d Dialect) *Backend {
	return &Backend{db: db, dialect: d}
}

// DB exposes the underlying handle.
func (b *Backend) DB() *sql.DB { return b.db }

// Close releases database resources.
func (b *Backend) Close() error {
	return b.db.Close()
}

// addedAtLayout is fixed-width so the text order of added_at is its time order.
const addedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Schema is the DDL for the books table. It is valid for both SQLite and PostgreSQL.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    author           TEXT NOT NULL,
    genre            TEXT NOT NULL DEFAULT '',
    fiction_type     TEXT NOT NULL DEFAULT '',
    difficulty       TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT '',
    formats          TEXT NOT NULL DEFAULT '[]',
    isbn             TEXT NOT NULL DEFAULT '',
    publication_date TEXT NOT NULL DEFAULT '',
    acquired_date    TEXT NOT NULL DEFAULT '',
    cover_url        TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    added_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_books_added_at ON books(added_at);
`

// CreateSchema creates the books table if it does not exist.
func (b *Backend) CreateSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// bookRow is a Book flattened to column values.
type bookRow struct {
	ID              string
	Title           string
	Author          string
	Genre           string
	FictionType     string
	Difficulty      string
	Status          string
	Formats         string // JSON array text
	ISBN            string
	PublicationDate string
	AcquiredDate    string
	CoverURL        string
	Notes           string
	AddedAt         string // UTC, fixed-width nanoseconds
}

func rowFromBook(bk catalog.Book) (bookRow, error) {
	formats := bk.Formats
	if formats == nil {
		formats = []catalog.Format{}
	}
	fj, err := json.Marshal(formats)
	if err != nil {
		return bookRow{}, fmt.Errorf("encode formats: %w", err)
	}
	return bookRow{
		ID:              bk.ID,
		Title:           bk.Title,
		Author:          bk.Author,
		Genre:           bk.Genre,
		FictionType:     bk.FictionType,
		Difficulty:      bk.Difficulty,
		Status:          bk.Status,
		Formats:         string(fj),
		ISBN:            bk.ISBN,
		PublicationDate: bk.PublicationDate,
		AcquiredDate:    bk.AcquiredDate,
		CoverURL:        bk.CoverURL,
		Notes:           bk.Notes,
		AddedAt:         bk.AddedAt.UTC().Format(addedAtLayout),
	}, nil
}

func (r bookRow) values() []any {
	return []any{
		r.ID, r.Title, r.Author, r.Genre, r.FictionType, r.Difficulty, r.Status,
		r.Formats, r.ISBN, r.PublicationDate, r.AcquiredDate, r.CoverURL, r.Notes, r.AddedAt,
	}
}

func (r bookRow) toBook() (catalog.Book, error) {
	bk := catalog.Book{
		ID:              r.ID,
		Title:           r.Title,
		Author:          r.Author,
		Genre:           r.Genre,
		FictionType:     r.FictionType,
		Difficulty:      r.Difficulty,
		Status:          r.Status,
		ISBN:            r.ISBN,
		PublicationDate: r.PublicationDate,
		AcquiredDate:    r.AcquiredDate,
		CoverURL:        r.CoverURL,
		Notes:           r.Notes,
	}
	if r.Formats != "" {
		if err := json.Unmarshal([]byte(r.Formats), &bk.Formats); err != nil {
			return catalog.Book{}, fmt.Errorf("decode formats of %q: %w", r.ID, err)
		}
	}
	if r.AddedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, r.AddedAt)
		if err != nil {
			return catalog.Book{}, fmt.Errorf("decode added_at of %q: %w", r.ID, err)
		}
		bk.AddedAt = t
	}
	return bk, nil
}

// Load returns every book ordered by insertion time.
func (b *Backend) Load(ctx context.Context) ([]catalog.Book, error) {
	q := `SELECT ` + strings.Join(columnNames(), ", ") + ` FROM books ORDER BY added_at, id`
	rows, err := b.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := []catalog.Book{}
	for rows.Next() {
		var r bookRow
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Author, &r.Genre, &r.FictionType, &r.Difficulty, &r.Status,
			&r.Formats, &r.ISBN, &r.PublicationDate, &r.AcquiredDate, &r.CoverURL, &r.Notes, &r.AddedAt,
		); err != nil {
			return nil, err
		}
		bk, err := r.toBook()
		if err != nil {
			return nil, err
		}
		books = append(books, bk)
	}
	return books, rows.Err()
}

// Insert adds a row for bk.
func (b *Backend) Insert(ctx context.Context, bk catalog.Book) error {
	r, err := rowFromBook(bk)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, b.insertSQL(), r.values()...); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// Replace overwrites every mutable column of the row with bk's ID.
// id and added_at are never rewritten.
func (b *Backend) Replace(ctx context.Context, bk catalog.Book) error {
	r, err := rowFromBook(bk)
	if err != nil {
		return err
	}
	vals := r.values()
	// Mutable values (everything between id and added_at), then id.
	args := append(append([]any{}, vals[1:len(vals)-1]...), r.ID)
	res, err := b.db.ExecContext(ctx, b.updateSQL(), args...)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return expectOne(res, bk.ID)
}

// Remove deletes the row with the given ID.
func (b *Backend) Remove(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM books WHERE id = `+b.dialect.Placeholder(1), id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return expectOne(res, id)
}

func (b *Backend) insertSQL() string {
	names := columnNames()
	ph := make([]string, len(names))
	for i := range names {
		ph[i] = b.dialect.Placeholder(i + 1)
	}
	return `INSERT INTO books (` + strings.Join(names, ", ") + `) VALUES (` + strings.Join(ph, ", ") + `)`
}

func (b *Backend) updateSQL() string {
	names := columnNames()
	mutable := names[1 : len(names)-1]
	sets := make([]string, len(mutable))
	for i, name := range mutable {
		sets[i] = name + " = " + b.dialect.Placeholder(i+1)
	}
	return `UPDATE books SET ` + strings.Join(sets, ", ") + ` WHERE id = ` + b.dialect.Placeholder(len(mutable)+1)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver does not report affected rows
	}
	if n == 0 {
		return &catalog.NotFoundError{ID: id}
	}
	return nil
}
