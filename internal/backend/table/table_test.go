package table

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/banux/nxt-shelf/internal/catalog"
)

func newMock(t *testing.T, d Dialect) (*Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, d), mock
}

func TestColumnFor(t *testing.T) {
	cases := map[string]string{
		"fictionType":     "fiction_type",
		"publicationDate": "publication_date",
		"acquiredDate":    "acquired_date",
		"coverUrl":        "cover_url",
		"addedAt":         "added_at",
		"title":           "title",
	}
	for field, want := range cases {
		got, ok := ColumnFor(field)
		if !ok || got != want {
			t.Errorf("ColumnFor(%q) = %q, %v; want %q", field, got, ok, want)
		}
	}
	if _, ok := ColumnFor("fiction_type"); ok {
		t.Error("ColumnFor should not accept column names")
	}
}

func TestUpdateSQL_Postgres(t *testing.T) {
	b := New(nil, Postgres)
	got := b.updateSQL()
	if !strings.HasPrefix(got, "UPDATE books SET title = $1, author = $2") {
		t.Errorf("unexpected prefix: %s", got)
	}
	if !strings.HasSuffix(got, "notes = $12 WHERE id = $13") {
		t.Errorf("unexpected suffix: %s", got)
	}
	if strings.Contains(got, "added_at") {
		t.Errorf("update must not touch added_at: %s", got)
	}
}

func TestInsertSQL_SQLite(t *testing.T) {
	b := New(nil, SQLite)
	got := b.insertSQL()
	if strings.Count(got, "?") != len(columns) {
		t.Errorf("expected %d placeholders: %s", len(columns), got)
	}
}

func TestInsert_Mock(t *testing.T) {
	b, mock := newMock(t, Postgres)
	added := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	bk := catalog.Book{
		ID: "b1", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction",
		FictionType: catalog.Fiction, Difficulty: "Moderate", Status: "read",
		Formats: []catalog.Format{catalog.FormatPhysical}, AddedAt: added,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books (id, title, author")).
		WithArgs("b1", "Dune", "Frank Herbert", "Science Fiction", catalog.Fiction, "Moderate", "read",
			`["physical"]`, "", "", "", "", "", "2024-01-02T03:04:05.000000000Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.Insert(context.Background(), bk); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAddedAtText_SortsInTimeOrder(t *testing.T) {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + time.Nanosecond),
	}
	var prev string
	for i, at := range times {
		r, err := rowFromBook(catalog.Book{ID: "b", AddedAt: at})
		if err != nil {
			t.Fatalf("rowFromBook: %v", err)
		}
		if i > 0 && !(prev < r.AddedAt) {
			t.Errorf("%q should sort before %q", prev, r.AddedAt)
		}
		back, err := r.toBook()
		if err != nil {
			t.Fatalf("toBook: %v", err)
		}
		if !back.AddedAt.Equal(at) {
			t.Errorf("added_at round trip: got %v, want %v", back.AddedAt, at)
		}
		prev = r.AddedAt
	}
}

func TestReplace_NotFound(t *testing.T) {
	b, mock := newMock(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := b.Replace(context.Background(), catalog.Book{ID: "missing", AddedAt: time.Now()})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRemove_Mock(t *testing.T) {
	b, mock := newMock(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM books WHERE id = $1")).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.Remove(context.Background(), "b1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoad_Mock(t *testing.T) {
	b, mock := newMock(t, SQLite)
	rows := sqlmock.NewRows(columnNames()).
		AddRow("b1", "Dune", "Frank Herbert", "Science Fiction", "Fiction", "Moderate", "read",
			`["physical","kindle"]`, "9780441013593", "1965", "", "", "spice", "2024-01-02T03:04:05Z")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title")).WillReturnRows(rows)

	books, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 book, got %d", len(books))
	}
	got := books[0]
	if got.FictionType != "Fiction" || got.ISBN != "9780441013593" || got.Notes != "spice" {
		t.Errorf("columns mapped wrong: %+v", got)
	}
	if !got.HasFormat(catalog.FormatKindle) {
		t.Errorf("formats not decoded: %v", got.Formats)
	}
	if got.AddedAt.Year() != 2024 {
		t.Errorf("added_at not parsed: %v", got.AddedAt)
	}
}

func TestLoad_BadFormats(t *testing.T) {
	b, mock := newMock(t, SQLite)
	rows := sqlmock.NewRows(columnNames()).
		AddRow("b1", "T", "A", "", "", "", "", `not json`, "", "", "", "", "", "2024-01-02T03:04:05Z")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	if _, err := b.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCreateSchema_Mock(t *testing.T) {
	b, mock := newMock(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS books")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_books_added_at")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := b.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
