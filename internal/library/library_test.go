package library

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/banux/nxt-shelf/internal/backend/kv"
	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/logger"
)

// brokenBackend fails every call.
type brokenBackend struct{ err error }

func (b brokenBackend) Load(context.Context) ([]catalog.Book, error) { return nil, b.err }
func (b brokenBackend) Insert(context.Context, catalog.Book) error   { return b.err }
func (b brokenBackend) Replace(context.Context, catalog.Book) error  { return b.err }
func (b brokenBackend) Remove(context.Context, string) error         { return b.err }

func newTestLibrary(t *testing.T) (*Library, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	seq := 0
	lib := New(kv.New(mem, ""), logger.Nop(),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { seq++; return "id-" + strconv.Itoa(seq) }),
	)
	lib.LoadAll(context.Background())
	return lib, mem
}

func data(title, author string, formats ...catalog.Format) catalog.BookData {
	if len(formats) == 0 {
		formats = []catalog.Format{catalog.FormatPhysical}
	}
	return catalog.BookData{
		Title:       title,
		Author:      author,
		Genre:       "Fantasy",
		FictionType: catalog.Fiction,
		Difficulty:  "Moderate",
		Status:      "unread",
		Formats:     formats,
	}
}

func TestLoadAll_FailsSoft(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lib := New(brokenBackend{err: errors.New("connection refused")}, logger.Wrap(zap.New(core)))

	books := lib.LoadAll(context.Background())
	if len(books) != 0 {
		t.Errorf("expected empty collection, got %d", len(books))
	}
	if logs.FilterMessage("load library failed, starting empty").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestLoadAll_ReadsBackend(t *testing.T) {
	ctx := context.Background()
	lib, mem := newTestLibrary(t)
	if _, err := lib.Add(ctx, data("The Hobbit", "J.R.R. Tolkien")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened := New(kv.New(mem, ""), nil)
	books := reopened.LoadAll(ctx)
	if len(books) != 1 || books[0].Title != "The Hobbit" {
		t.Errorf("unexpected books: %+v", books)
	}
}

func TestAdd(t *testing.T) {
	lib, _ := newTestLibrary(t)
	bk, err := lib.Add(context.Background(), data("  Dune ", "Frank Herbert", "Kindle", "kindle", "physical"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if bk.ID != "id-1" {
		t.Errorf("ID: got %q", bk.ID)
	}
	if bk.Title != "Dune" {
		t.Errorf("title not trimmed: %q", bk.Title)
	}
	if catalog.JoinFormats(bk.Formats) != "kindle, physical" {
		t.Errorf("formats: got %v", bk.Formats)
	}
	if !bk.AddedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("addedAt: got %v", bk.AddedAt)
	}
	if lib.Len() != 1 {
		t.Errorf("Len: got %d", lib.Len())
	}
}

func TestAdd_ValidationError(t *testing.T) {
	lib, _ := newTestLibrary(t)
	_, err := lib.Add(context.Background(), catalog.BookData{Title: " ", ISBN: "123"})
	if !errors.Is(err, catalog.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	var ve *catalog.ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected *ValidationError")
	}
	if ve.Problems[0] != catalog.MsgTitleRequired {
		t.Errorf("first problem: got %q", ve.Problems[0])
	}
	if last := ve.Problems[len(ve.Problems)-1]; last != catalog.MsgISBNInvalid {
		t.Errorf("last problem: got %q", last)
	}
	if lib.Len() != 0 {
		t.Error("invalid book was added")
	}
}

func TestAdd_PersistenceErrorLeavesMirror(t *testing.T) {
	lib, mem := newTestLibrary(t)
	mem.FailPut = errors.New("quota exceeded")

	_, err := lib.Add(context.Background(), data("Dune", "Frank Herbert"))
	if !errors.Is(err, catalog.ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if lib.Len() != 0 {
		t.Error("mirror changed after failed write")
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	orig, _ := lib.Add(ctx, data("Dune", "Frank Herbert"))

	d := orig.Data()
	d.Status = "read"
	d.Notes = "reread"
	got, err := lib.Update(ctx, orig.ID, d)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != orig.ID || !got.AddedAt.Equal(orig.AddedAt) {
		t.Error("ID or AddedAt changed")
	}
	if got.Status != "read" || got.Notes != "reread" {
		t.Errorf("fields not replaced: %+v", got)
	}
	stored, _ := lib.Get(orig.ID)
	if stored.Status != "read" {
		t.Error("mirror not updated")
	}
}

func TestModify_ConcurrentCallsSeeLatest(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	orig, _ := lib.Add(ctx, data("Dune", "Frank Herbert"))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lib.Modify(ctx, orig.ID, func(cur catalog.Book) catalog.BookData {
				d := cur.Data()
				n, _ := strconv.Atoi(d.Notes)
				d.Notes = strconv.Itoa(n + 1)
				return d
			})
			if err != nil {
				t.Errorf("Modify: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := lib.Get(orig.ID)
	if got.Notes != "25" {
		t.Errorf("lost updates: notes = %q, want 25", got.Notes)
	}
	if _, err := lib.Modify(ctx, "nope", func(cur catalog.Book) catalog.BookData { return cur.Data() }); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Modify unknown id: got %v", err)
	}
}

func TestUpdate_Errors(t *testing.T) {
	ctx := context.Background()
	lib, mem := newTestLibrary(t)
	orig, _ := lib.Add(ctx, data("Dune", "Frank Herbert"))

	if _, err := lib.Update(ctx, "nope", data("x", "y")); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
	if _, err := lib.Update(ctx, orig.ID, catalog.BookData{}); !errors.Is(err, catalog.ErrValidation) {
		t.Errorf("invalid data: got %v", err)
	}

	mem.FailPut = errors.New("disk full")
	if _, err := lib.Update(ctx, orig.ID, data("Children of Dune", "Frank Herbert")); !errors.Is(err, catalog.ErrPersistence) {
		t.Errorf("failed write: got %v", err)
	}
	stored, _ := lib.Get(orig.ID)
	if stored.Title != "Dune" {
		t.Errorf("mirror changed after failed write: %q", stored.Title)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	lib, mem := newTestLibrary(t)
	a, _ := lib.Add(ctx, data("A", "X"))
	b, _ := lib.Add(ctx, data("B", "X"))

	mem.FailPut = errors.New("offline")
	if _, err := lib.Delete(ctx, a.ID); !errors.Is(err, catalog.ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if lib.Len() != 2 {
		t.Fatal("mirror changed after failed delete")
	}
	mem.FailPut = nil

	removed, err := lib.Delete(ctx, a.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed.Title != "A" {
		t.Errorf("removed: got %q", removed.Title)
	}
	books := lib.Books()
	if len(books) != 1 || books[0].ID != b.ID {
		t.Errorf("unexpected remaining books: %+v", books)
	}
	if _, err := lib.Delete(ctx, a.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func TestBooks_ReturnsCopy(t *testing.T) {
	lib, _ := newTestLibrary(t)
	_, _ = lib.Add(context.Background(), data("Dune", "Frank Herbert"))

	books := lib.Books()
	books[0].Title = "mutated"
	books[0].Formats[0] = catalog.FormatAudible

	stored := lib.Books()[0]
	if stored.Title != "Dune" || stored.Formats[0] != catalog.FormatPhysical {
		t.Errorf("caller mutated the mirror: %+v", stored)
	}
}

func TestImportMany_SkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	_, _ = lib.Add(ctx, data("The Hobbit", "J.R.R. Tolkien"))

	res := lib.ImportMany(ctx, []catalog.BookData{
		{Title: "the hobbit ", Author: "j.r.r. tolkien"},
		{Title: "Piranesi", Author: "Susanna Clarke"},
	})
	want := ImportResult{Imported: 1, Skipped: 1, Total: 2}
	if res != want {
		t.Errorf("got %+v, want %+v", res, want)
	}
	if lib.Len() != 2 {
		t.Errorf("Len: got %d", lib.Len())
	}
}

func TestImportMany_Defaults(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	res := lib.ImportMany(ctx, []catalog.BookData{{Title: "Piranesi", Author: "Susanna Clarke"}})
	if res.Imported != 1 {
		t.Fatalf("got %+v", res)
	}
	bk := lib.Books()[0]
	if bk.Status != DefaultStatus || bk.Genre != DefaultGenre || bk.FictionType != DefaultFictionType || bk.Difficulty != DefaultDifficulty {
		t.Errorf("defaults not applied: %+v", bk)
	}
	if catalog.JoinFormats(bk.Formats) != "physical" {
		t.Errorf("formats default: got %v", bk.Formats)
	}
}

func TestImportMany_PartialFailure(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	res := lib.ImportMany(ctx, []catalog.BookData{
		{Title: "", Author: "Nobody"},
		{Title: "Bad ISBN", Author: "Someone", ISBN: "12"},
		{Title: "Good", Author: "Someone"},
	})
	want := ImportResult{Imported: 1, Skipped: 2, Total: 3}
	if res != want {
		t.Errorf("got %+v, want %+v", res, want)
	}
}

func TestImportMany_ExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestLibrary(t)
	_, _ = src.Add(ctx, data("Dune", "Frank Herbert", catalog.FormatKindle))
	_, _ = src.Add(ctx, data("Emma", "Jane Austen"))
	_, _ = src.Add(ctx, data("Emma", "Jane Austen", catalog.FormatAudible))

	exported := src.Export()
	records := make([]catalog.BookData, len(exported))
	for i, bk := range exported {
		records[i] = bk.Data()
	}

	dst, _ := newTestLibrary(t)
	res := dst.ImportMany(ctx, records)
	if res.Imported != res.Total || res.Skipped != 0 {
		t.Fatalf("round trip: got %+v", res)
	}
	for i, bk := range dst.Books() {
		if bk.Title != exported[i].Title || catalog.JoinFormats(bk.Formats) != catalog.JoinFormats(exported[i].Formats) {
			t.Errorf("book %d differs: %+v vs %+v", i, bk, exported[i])
		}
	}
}

func TestFindDuplicateAndCount(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	stored, _ := lib.Add(ctx, data("the hobbit", "j.r.r. tolkien"))
	_, _ = lib.Add(ctx, data("The Hobbit", "J.R.R. Tolkien", catalog.FormatKindle))

	got, ok := lib.FindDuplicate("The Hobbit", " J.R.R. Tolkien")
	if !ok || got.ID != stored.ID {
		t.Errorf("FindDuplicate: got %+v, %v", got, ok)
	}
	if _, ok := lib.FindDuplicate("The Hobbit", "Someone Else"); ok {
		t.Error("matched on title alone")
	}
	if n := lib.CountMatching("THE HOBBIT", "j.r.r. tolkien"); n != 2 {
		t.Errorf("CountMatching: got %d", n)
	}
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	backend := kv.New(mem, "")
	lib := New(backend, logger.Nop())
	lib.LoadAll(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bk, err := lib.Add(ctx, data(fmt.Sprintf("Book %d", i), "Author"))
			if err != nil {
				t.Errorf("Add: %v", err)
				return
			}
			if i%2 == 0 {
				if _, err := lib.Delete(ctx, bk.ID); err != nil {
					t.Errorf("Delete: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	stored, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stored) != 10 || lib.Len() != 10 {
		t.Fatalf("mirror %d and backend %d diverged", lib.Len(), len(stored))
	}
	mirror := map[string]bool{}
	for _, bk := range lib.Books() {
		mirror[bk.ID] = true
	}
	for _, bk := range stored {
		if !mirror[bk.ID] {
			t.Errorf("backend book %q missing from mirror", bk.ID)
		}
	}
}
