// Package kv implements a catalog backend that keeps the whole collection as
// a single JSON-encoded array under a fixed key of a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// DefaultKey is the key the collection is stored under.
const DefaultKey = "nxt-shelf:books"

// ErrMissing is returned by Store.Get when the key has never been written.
var ErrMissing = errors.New("key not found")

// Store is a byte-oriented key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrMissing.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
}

// Backend stores books as one JSON array under a single key.
// Every write is a read-modify-write of the whole array.
type Backend struct {
	store Store
	key   string

	mu sync.Mutex // serializes read-modify-write cycles within this process
}

// New returns a Backend over store. An empty key selects DefaultKey.
func New(store Store, key string) *Backend {
	if key == "" {
		key = DefaultKey
	}
	return &Backend{store: store, key: key}
}

// Key returns the key the collection is stored under.
func (b *Backend) Key() string { return b.key }

// Load returns every stored book. A missing key is an empty collection.
func (b *Backend) Load(ctx context.Context) ([]catalog.Book, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(ctx)
}

// Insert appends bk to the stored array.
func (b *Backend) Insert(ctx context.Context, bk catalog.Book) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	books, err := b.read(ctx)
	if err != nil {
		return err
	}
	for _, have := range books {
		if have.ID == bk.ID {
			return fmt.Errorf("book %q already stored", bk.ID)
		}
	}
	return b.write(ctx, append(books, bk))
}

// Replace overwrites the stored book that has bk's ID.
func (b *Backend) Replace(ctx context.Context, bk catalog.Book) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	books, err := b.read(ctx)
	if err != nil {
		return err
	}
	for i := range books {
		if books[i].ID == bk.ID {
			books[i] = bk
			return b.write(ctx, books)
		}
	}
	return &catalog.NotFoundError{ID: bk.ID}
}

// Remove deletes the stored book with the given ID.
func (b *Backend) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	books, err := b.read(ctx)
	if err != nil {
		return err
	}
	for i := range books {
		if books[i].ID == id {
			return b.write(ctx, append(books[:i], books[i+1:]...))
		}
	}
	return &catalog.NotFoundError{ID: id}
}

// Close closes the underlying store if it supports closing.
func (b *Backend) Close() error {
	if c, ok := b.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Backend) read(ctx context.Context) ([]catalog.Book, error) {
	data, err := b.store.Get(ctx, b.key)
	if errors.Is(err, ErrMissing) {
		return []catalog.Book{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", b.key, err)
	}
	var books []catalog.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("decode %q: %w", b.key, err)
	}
	if books == nil {
		books = []catalog.Book{}
	}
	return books, nil
}

func (b *Backend) write(ctx context.Context, books []catalog.Book) error {
	data, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("encode books: %w", err)
	}
	if err := b.store.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("write %q: %w", b.key, err)
	}
	return nil
}
