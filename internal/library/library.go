// Package library owns the in-memory book collection and writes every change
// through to a catalog.Backend before the collection is touched.
package library

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/logger"
)

// Import defaults for required fields missing from a record.
const (
	DefaultStatus      = "unread"
	DefaultGenre       = "Uncategorized"
	DefaultFictionType = catalog.Nonfiction
	DefaultDifficulty  = "Moderate"
)

// DefaultFormats is used when an imported record has no formats.
var DefaultFormats = []catalog.Format{catalog.FormatPhysical}

// Library is the single owner of the book collection. All access goes through
// its methods; returned slices and books are copies.
type Library struct {
	backend catalog.Backend
	log     logger.Logger
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	books []catalog.Book
}

// Option configures a Library.
type Option func(*Library)

// WithClock overrides the clock used for AddedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithIDGenerator overrides book ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Library) { l.newID = fn }
}

// New returns an empty Library writing through to backend. Call LoadAll to
// populate it.
func New(backend catalog.Backend, log logger.Logger, opts ...Option) *Library {
	if log == nil {
		log = logger.Nop()
	}
	l := &Library{
		backend: backend,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
		books:   []catalog.Book{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll replaces the collection with the backend's contents and returns a copy.
// A backend failure is logged and leaves the library empty; it is never returned.
func (l *Library) LoadAll(ctx context.Context) []catalog.Book {
	books, err := l.backend.Load(ctx)
	if err != nil {
		l.log.Warn("load library failed, starting empty", logger.Error(err))
		books = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.books = append([]catalog.Book{}, books...)
	l.log.Info("library loaded", logger.Int("books", len(l.books)))
	return l.copyLocked()
}

// Books returns a copy of the collection in insertion order.
func (l *Library) Books() []catalog.Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Export returns the collection ready to be serialized as an import file.
func (l *Library) Export() []catalog.Book {
	return l.Books()
}

// Len returns the number of books.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.books)
}

// Get returns the book with the given ID.
func (l *Library) Get(id string) (catalog.Book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.indexLocked(id)
	if i < 0 {
		return catalog.Book{}, &catalog.NotFoundError{ID: id}
	}
	return cloneBook(l.books[i]), nil
}

// Add validates d, assigns an ID and AddedAt, persists the book and appends it.
func (l *Library) Add(ctx context.Context, d catalog.BookData) (catalog.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(ctx, d)
}

func (l *Library) addLocked(ctx context.Context, d catalog.BookData) (catalog.Book, error) {
	d = d.Normalize()
	if res := catalog.Validate(d); !res.Valid {
		return catalog.Book{}, &catalog.ValidationError{Problems: res.Errors}
	}

	bk := catalog.Book{ID: l.newID(), AddedAt: l.now()}.Apply(d)
	if err := l.backend.Insert(ctx, bk); err != nil {
		return catalog.Book{}, &catalog.PersistenceError{Op: "add book", Err: err}
	}
	l.books = append(l.books, bk)
	return cloneBook(bk), nil
}

// Update replaces every mutable field of the book with the given ID.
// ID and AddedAt are preserved.
func (l *Library) Update(ctx context.Context, id string, d catalog.BookData) (catalog.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateLocked(ctx, id, func(catalog.Book) catalog.BookData { return d })
}

// Modify rewrites the book with the given ID from its current state. fn sees
// the stored record and returns the replacement data. The read and the write
// happen under one lock.
func (l *Library) Modify(ctx context.Context, id string, fn func(catalog.Book) catalog.BookData) (catalog.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateLocked(ctx, id, fn)
}

func (l *Library) updateLocked(ctx context.Context, id string, fn func(catalog.Book) catalog.BookData) (catalog.Book, error) {
	i := l.indexLocked(id)
	if i < 0 {
		return catalog.Book{}, &catalog.NotFoundError{ID: id}
	}
	d := fn(cloneBook(l.books[i])).Normalize()
	if res := catalog.Validate(d); !res.Valid {
		return catalog.Book{}, &catalog.ValidationError{Problems: res.Errors}
	}

	updated := l.books[i].Apply(d)
	if err := l.backend.Replace(ctx, updated); err != nil {
		return catalog.Book{}, &catalog.PersistenceError{Op: "update book", Err: err}
	}
	l.books[i] = updated
	return cloneBook(updated), nil
}

// Delete removes the book with the given ID and returns it.
func (l *Library) Delete(ctx context.Context, id string) (catalog.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return catalog.Book{}, &catalog.NotFoundError{ID: id}
	}
	removed := l.books[i]
	if err := l.backend.Remove(ctx, id); err != nil {
		return catalog.Book{}, &catalog.PersistenceError{Op: "delete book", Err: err}
	}
	l.books = append(l.books[:i:i], l.books[i+1:]...)
	return removed, nil
}

// ImportResult summarizes an ImportMany call.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// ImportMany adds each record that does not duplicate a book already in the
// library when the import started. Missing required fields are defaulted.
// A record that fails to add is counted as skipped and the batch continues.
func (l *Library) ImportMany(ctx context.Context, records []catalog.BookData) ImportResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]bool, len(l.books))
	for _, bk := range l.books {
		existing[catalog.DuplicateKey(bk.Title, bk.Author)] = true
	}

	res := ImportResult{Total: len(records)}
	for i, rec := range records {
		if existing[catalog.DuplicateKey(rec.Title, rec.Author)] {
			res.Skipped++
			continue
		}
		if _, err := l.addLocked(ctx, WithDefaults(rec)); err != nil {
			l.log.Warn("import record skipped",
				logger.Int("index", i),
				logger.String("title", rec.Title),
				logger.Error(err))
			res.Skipped++
			continue
		}
		res.Imported++
	}
	l.log.Info("import finished",
		logger.Int("imported", res.Imported),
		logger.Int("skipped", res.Skipped),
		logger.Int("total", res.Total))
	return res
}

// WithDefaults fills the required fields an import record is allowed to omit.
func WithDefaults(d catalog.BookData) catalog.BookData {
	if strings.TrimSpace(d.Status) == "" {
		d.Status = DefaultStatus
	}
	if strings.TrimSpace(d.Genre) == "" {
		d.Genre = DefaultGenre
	}
	if strings.TrimSpace(d.FictionType) == "" {
		d.FictionType = DefaultFictionType
	}
	if strings.TrimSpace(d.Difficulty) == "" {
		d.Difficulty = DefaultDifficulty
	}
	if len(catalog.UniqueFormats(d.Formats)) == 0 {
		d.Formats = append([]catalog.Format(nil), DefaultFormats...)
	}
	return d
}

// FindDuplicate returns the first book whose title and author match,
// ignoring case and surrounding whitespace.
func (l *Library) FindDuplicate(title, author string) (catalog.Book, bool) {
	key := catalog.DuplicateKey(title, author)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, bk := range l.books {
		if catalog.DuplicateKey(bk.Title, bk.Author) == key {
			return cloneBook(bk), true
		}
	}
	return catalog.Book{}, false
}

// CountMatching returns how many books share the given title and author.
func (l *Library) CountMatching(title, author string) int {
	key := catalog.DuplicateKey(title, author)
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, bk := range l.books {
		if catalog.DuplicateKey(bk.Title, bk.Author) == key {
			n++
		}
	}
	return n
}

func (l *Library) indexLocked(id string) int {
	for i, bk := range l.books {
		if bk.ID == id {
			return i
		}
	}
	return -1
}

func (l *Library) copyLocked() []catalog.Book {
	out := make([]catalog.Book, len(l.books))
	for i, bk := range l.books {
		out[i] = cloneBook(bk)
	}
	return out
}

func cloneBook(bk catalog.Book) catalog.Book {
	bk.Formats = append([]catalog.Format(nil), bk.Formats...)
	return bk
}
