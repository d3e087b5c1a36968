package scan

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedBusy is returned when a Feed is started twice.
var ErrFeedBusy = errors.New("feed already started")

// Feed is a Decoder for codes decoded elsewhere, such as in a browser, and
// pushed in one at a time.
type Feed struct {
	mu       sync.Mutex
	onDetect func(string)
}

// NewFeed returns a stopped Feed.
func NewFeed() *Feed { return &Feed{} }

// Start implements Decoder.
func (f *Feed) Start(_ context.Context, onDetect func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onDetect != nil {
		return ErrFeedBusy
	}
	f.onDetect = onDetect
	return nil
}

// Stop implements Decoder.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.onDetect = nil
	f.mu.Unlock()
}

// Push delivers code to the running session. It reports false when the feed
// is stopped and the code was dropped.
func (f *Feed) Push(code string) bool {
	f.mu.Lock()
	fn := f.onDetect
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(code)
	return true
}
