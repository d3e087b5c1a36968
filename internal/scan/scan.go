// Package scan batches barcodes from a decoder into ISBN lists.
//
// A Session moves Idle -> Scanning -> Draining -> Idle. While scanning, each
// valid ISBN detection restarts a quiet-period timer; when the timer elapses
// the distinct codes seen so far are handed to the sink as one batch.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/logger"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateDraining State = "draining"
)

// DefaultQuietPeriod is used when NewSession gets a non-positive window.
const DefaultQuietPeriod = 5 * time.Second

// ErrActive is returned by Start when the session is not idle.
var ErrActive = errors.New("scan session already active")

// Decoder produces decoded barcode strings. onDetect may be called from any
// goroutine. Stop must be safe to call more than once.
type Decoder interface {
	Start(ctx context.Context, onDetect func(code string)) error
	Stop()
}

// Sink receives a finished batch of distinct codes in first-seen order.
type Sink func(codes []string)

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Session is a barcode capture session.
type Session struct {
	dec   Decoder
	quiet time.Duration
	log   logger.Logger
	clock Clock

	mu    sync.Mutex
	state State
	gen   uint64 // bumped by Start and Stop; stale callbacks compare against it
	tick  uint64 // bumped on every timer reschedule
	timer Timer
	sink  Sink
	codes []string
	seen  map[string]bool
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// NewSession returns an idle session over dec.
func NewSession(dec Decoder, quiet time.Duration, log logger.Logger, opts ...Option) *Session {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		dec:   dec,
		quiet: quiet,
		log:   log,
		clock: realClock{},
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the codes accumulated so far in the current batch.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.codes...)
}

// QuietPeriod returns the batching window.
func (s *Session) QuietPeriod() time.Duration { return s.quiet }

// Start moves an idle session to Scanning and starts the decoder. If the
// decoder fails to start, onError is called, the session stays Idle and the
// error is returned.
func (s *Session) Start(ctx context.Context, sink Sink, onError func(error)) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrActive
	}
	s.gen++
	gen := s.gen
	s.state = StateScanning
	s.sink = sink
	s.resetLocked()
	s.mu.Unlock()

	err := s.dec.Start(ctx, func(code string) { s.detect(gen, code) })
	if err == nil {
		s.mu.Lock()
		stopped := s.gen != gen
		s.mu.Unlock()
		if stopped {
			// Stop ran while the decoder was starting.
			s.dec.Stop()
			return nil
		}
		s.log.Info("scan session started", logger.Duration("quiet_period", s.quiet))
		return nil
	}

	s.mu.Lock()
	if s.gen == gen {
		s.gen++
		s.state = StateIdle
		s.sink = nil
		s.resetLocked()
	}
	s.mu.Unlock()

	s.log.Warn("scan decoder failed to start", logger.Error(err))
	if onError != nil {
		onError(err)
	}
	return err
}

// Stop cancels any pending batch, halts the decoder and returns to Idle.
// It is safe to call in any state, any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	wasScanning := s.state == StateScanning
	s.gen++
	s.state = StateIdle
	s.sink = nil
	s.resetLocked()
	s.mu.Unlock()

	if wasScanning {
		s.dec.Stop()
		s.log.Info("scan session stopped")
	}
}

func (s *Session) detect(gen uint64, code string) {
	f := isbn.ValidateFormat(code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateScanning {
		return
	}
	if !f.Valid {
		s.log.Debug("discarding barcode", logger.String("code", code))
		return
	}
	if !s.seen[f.Normalized] {
		s.seen[f.Normalized] = true
		s.codes = append(s.codes, f.Normalized)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.tick++
	tick := s.tick
	s.timer = s.clock.AfterFunc(s.quiet, func() { s.drain(gen, tick) })
}

func (s *Session) drain(gen, tick uint64) {
	s.mu.Lock()
	if s.gen != gen || s.tick != tick || s.state != StateScanning {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	batch := append([]string{}, s.codes...)
	sink := s.sink
	s.resetLocked()
	s.mu.Unlock()

	s.dec.Stop()
	s.log.Info("scan batch ready", logger.Strings("codes", batch))
	if sink != nil {
		sink(batch)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.gen++
		s.state = StateIdle
		s.sink = nil
	}
	s.mu.Unlock()
}

// resetLocked drops the pending timer and accumulated codes.
func (s *Session) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.codes = nil
	s.seen = make(map[string]bool)
}
