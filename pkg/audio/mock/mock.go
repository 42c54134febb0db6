// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use and record every call so tests can
// assert on ordering and arguments.
//
// Typical usage:
//
//	src := mock.NewSource(16)
//	src.Push(frame)
//	src.Fail(errors.New("unplugged"))
//
//	sink := &mock.Sink{PlayDelay: 10 * time.Millisecond}
//	_ = sink.Play(ctx, clip)
//	clips := sink.Played()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] fed by the test through Push.
type Source struct {
	mu     sync.Mutex
	frames chan audio.AudioFrame
	err    error
	closed bool

	// CloseCalls counts Close invocations.
	CloseCalls int
}

var _ audio.Source = (*Source)(nil)

// NewSource creates a Source whose frame channel has the given buffer size.
func NewSource(buffer int) *Source {
	return &Source{frames: make(chan audio.AudioFrame, buffer)}
}

// Push delivers a frame. It is a no-op after Close or Fail.
func (s *Source) Push(f audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- f
}

// Fail ends the stream abnormally; Err will return err.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frames)
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.AudioFrame { return s.frames }

// Err implements [audio.Source].
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// PlayCall records a single Play invocation.
type PlayCall struct {
	Clip     audio.Clip
	Started  time.Time
	Finished time.Time
	// Interrupted is true when ctx was cancelled before PlayDelay elapsed.
	Interrupted bool
}

// Sink is a mock [audio.Sink]. Each Play blocks for PlayDelay (or until ctx
// is cancelled) and then returns PlayErr.
type Sink struct {
	PlayDelay time.Duration
	PlayErr   error

	mu      sync.Mutex
	calls   []PlayCall
	playing int
	// MaxConcurrent is the highest number of overlapping Play calls seen.
	MaxConcurrent int
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	s.mu.Lock()
	s.playing++
	s.MaxConcurrent = max(s.MaxConcurrent, s.playing)
	delay, playErr := s.PlayDelay, s.PlayErr
	s.mu.Unlock()

	call := PlayCall{Clip: clip, Started: time.Now()}
	var err error
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			call.Interrupted = true
			err = ctx.Err()
		}
	}
	call.Finished = time.Now()

	s.mu.Lock()
	s.playing--
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return playErr
}

// Played returns a copy of all recorded Play calls in completion order.
func (s *Sink) Played() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// MaxOverlap returns the highest number of concurrent Play calls observed.
func (s *Sink) MaxOverlap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MaxConcurrent
}
