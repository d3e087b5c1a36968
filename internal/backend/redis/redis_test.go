package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banux/nxt-shelf/internal/backend/kv"
	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/logger"
)

// fakeClient is an in-memory stand-in for *redis.Client.
type fakeClient struct {
	data   map[string]string
	getErr error
	closed bool
}

func newFakeClient() *fakeClient { return &fakeClient{data: make(map[string]string)} }

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestStore_MissingKeyMapsToErrMissing(t *testing.T) {
	s := &Store{client: newFakeClient()}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, kv.ErrMissing) {
		t.Errorf("expected kv.ErrMissing, got %v", err)
	}
}

func TestStore_TransportError(t *testing.T) {
	fc := newFakeClient()
	fc.getErr = errors.New("connection refused")
	s := &Store{client: fc}
	_, err := s.Get(context.Background(), "k")
	if err == nil || errors.Is(err, kv.ErrMissing) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestStore_BackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	b := kv.New(&Store{client: fc}, "")

	bk := catalog.Book{ID: "1", Title: "Dune", Author: "Frank Herbert", Formats: []catalog.Format{catalog.FormatAudible}}
	if err := b.Insert(ctx, bk); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok := fc.data[kv.DefaultKey]; !ok {
		t.Fatalf("expected value under %q, have %v", kv.DefaultKey, fc.data)
	}
	books, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Dune" {
		t.Errorf("unexpected books: %+v", books)
	}
	if err := b.Close(); err != nil || !fc.closed {
		t.Errorf("Close: err=%v closed=%v", err, fc.closed)
	}
}

func TestConnectOptions_Validate(t *testing.T) {
	if err := (ConnectOptions{}).validate(); err == nil {
		t.Error("expected error for empty options")
	}
	if err := DefaultConnectOptions("localhost:6379").validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
	opts := DefaultConnectOptions("localhost:6379")
	opts.MaxWait = 0
	if _, err := Connect(context.Background(), opts, logger.Nop()); err == nil {
		t.Error("expected Connect to reject invalid options")
	}
}
