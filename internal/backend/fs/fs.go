// Package fs implements a file-backed key-value store for nxt-shelf.
// All keys live in one JSON object file inside the data directory; writes go
// through a temp file and an atomic rename, and a lock file keeps separate
// processes (e.g. the server and the CLI) from interleaving writes.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/banux/nxt-shelf/internal/backend/kv"
)

const (
	storeFilename = "store.json"
	lockRetry     = 50 * time.Millisecond
)

// Store is a JSON-file key-value store.
type Store struct {
	path string
	lock *flock.Flock

	mu sync.Mutex
}

// New creates the data directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, storeFilename)
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the location of the store file.
func (s *Store) Path() string { return s.path }

// Get returns the raw JSON value stored under key, or kv.ErrMissing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock store: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("lock store: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, kv.ErrMissing
	}
	return v, nil
}

// Put stores value (which must be valid JSON) under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock store: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := s.readAll()
	if err != nil {
		return err
	}
	entries[key] = json.RawMessage(value)
	return s.writeAll(entries)
}

// readAll loads the store file. A missing file is an empty store.
func (s *Store) readAll() (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse store %q: %w", s.path, err)
	}
	return entries, nil
}

// writeAll persists entries via a temp file and rename.
func (s *Store) writeAll(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() // clean up temp on failure

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}

// NewBackend is a convenience that opens a Store in dir and wraps it in a
// kv.Backend under key.
func NewBackend(dir, key string) (*kv.Backend, error) {
	st, err := New(dir)
	if err != nil {
		return nil, err
	}
	return kv.New(st, key), nil
}
