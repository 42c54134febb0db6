// Package recorder segments a continuous audio stream into finished voice
// recordings.
//
// A [Segmenter] buffers frames for one recording session at a time and, when
// the voice activity detector signals StopRecording or the caller stops
// manually, concatenates them into an immutable [Recording]. A [Listener]
// wires an [audio.Source], a [vad.Detector] and a Segmenter into the usual
// capture loop.
package recorder

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vozbraille/internal/vad"
	"github.com/MrWong99/vozbraille/pkg/audio"
)

var (
	// ErrStopping is returned by Start and Stop while a previous session is
	// still being finalised.
	ErrStopping = errors.New("recorder: previous session is stopping")

	// ErrSessionActive is returned by Start when a session is already open.
	ErrSessionActive = errors.New("recorder: session already active")

	// ErrNoSession is returned by Stop when there is nothing to stop.
	ErrNoSession = errors.New("recorder: no active session")
)

// SessionHandle identifies one recording session.
type SessionHandle struct {
	ID        string
	StartedAt time.Time
}

// Recording is the finished, immutable output of a session.
type Recording struct {
	SessionID  string
	PCM        []byte
	SampleRate int
	Channels   int
	Frames     int
	StartedAt  time.Time
	StoppedAt  time.Time
	Reason     vad.StopReason

	// VoiceDetected reports whether the detector ever heard voice.
	VoiceDetected bool
}

// Duration returns the audio length of the recording.
func (r Recording) Duration() time.Duration {
	return audio.Clip{PCM: r.PCM, SampleRate: r.SampleRate, Channels: r.Channels}.Duration()
}

// Empty reports whether the recording holds no usable speech.
func (r Recording) Empty() bool {
	return len(r.PCM) == 0 || !r.VoiceDetected
}

// session is the mutable state of one open recording.
type session struct {
	handle   SessionHandle
	frames   []audio.AudioFrame
	size     int
	audioLen time.Duration
	state    vad.State
	heard    bool
	format   audio.Format
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithMaxDuration caps the audio length of a session. Zero disables the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(s *Segmenter) { s.maxDuration = d }
}

// WithSegmenterClock replaces the wall clock used for timestamps.
func WithSegmenterClock(c vad.Clock) Option {
	return func(s *Segmenter) { s.clock = c }
}

// Segmenter owns at most one recording session at a time. All methods are
// safe for concurrent use.
type Segmenter struct {
	maxDuration time.Duration
	clock       vad.Clock

	mu       sync.Mutex
	current  *session
	stopping bool
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{clock: vad.SystemClock{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens a new session. Starting while the previous session is being
// finalised is rejected with [ErrStopping] rather than racing the stop.
func (s *Segmenter) Start() (SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		slog.Info("recorder: start rejected, previous session still stopping")
		return SessionHandle{}, ErrStopping
	}
	if s.current != nil {
		slog.Info("recorder: start rejected, session already active", "session_id", s.current.handle.ID)
		return SessionHandle{}, ErrSessionActive
	}
	h := SessionHandle{ID: uuid.NewString(), StartedAt: s.clock.Now()}
	s.current = &session{handle: h, state: vad.StateIdle}
	return h, nil
}

// Active reports whether a session is open.
func (s *Segmenter) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.stopping
}

// OnFrame appends a frame to the open session. It reports true when the
// session has reached its maximum duration and should be stopped with
// [vad.ReasonMaxDuration]. Frames arriving with no open session are dropped.
func (s *Segmenter) OnFrame(f audio.AudioFrame) (limitReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current
	if cur == nil || s.stopping || cur.state == vad.StateStopped {
		return false
	}
	if len(cur.frames) == 0 {
		cur.format = audio.Format{SampleRate: f.SampleRate, Channels: f.Channels}
	}
	cur.frames = append(cur.frames, f)
	cur.size += len(f.Data)
	cur.audioLen += f.Duration()
	return s.maxDuration > 0 && cur.audioLen >= s.maxDuration
}

// OnVadEvent advances the session state. A StopRecording event finalises
// the session and returns the recording.
func (s *Segmenter) OnVadEvent(ev vad.Event) (Recording, bool) {
	s.mu.Lock()
	cur := s.current
	if cur == nil || s.stopping {
		s.mu.Unlock()
		return Recording{}, false
	}
	switch ev.Type {
	case vad.VoiceStarted:
		cur.state = vad.StateVoiceDetected
		cur.heard = true
	case vad.SilenceAfterVoice:
		cur.state = vad.StateGraceSilence
	case vad.StopRecording:
		s.mu.Unlock()
		rec, err := s.Stop(ev.Reason)
		return rec, err == nil
	}
	s.mu.Unlock()
	return Recording{}, false
}

// Stop finalises the open session into a [Recording] and releases it. Only
// the first of concurrent or repeated calls finalises; the rest get
// [ErrStopping] or [ErrNoSession].
func (s *Segmenter) Stop(reason vad.StopReason) (Recording, error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return Recording{}, ErrStopping
	}
	cur := s.current
	if cur == nil {
		s.mu.Unlock()
		return Recording{}, ErrNoSession
	}
	s.stopping = true
	cur.state = vad.StateStopped
	s.mu.Unlock()

	rec := Recording{
		SessionID:     cur.handle.ID,
		PCM:           concat(cur.frames, cur.size),
		SampleRate:    cur.format.SampleRate,
		Channels:      cur.format.Channels,
		Frames:        len(cur.frames),
		StartedAt:     cur.handle.StartedAt,
		StoppedAt:     s.clock.Now(),
		Reason:        reason,
		VoiceDetected: cur.heard,
	}

	s.mu.Lock()
	s.current = nil
	s.stopping = false
	s.mu.Unlock()

	slog.Debug("recorder: session finalised",
		"session_id", rec.SessionID,
		"reason", rec.Reason,
		"frames", rec.Frames,
		"duration", rec.Duration(),
	)
	return rec, nil
}

func concat(frames []audio.AudioFrame, size int) []byte {
	out := make([]byte, 0, size)
	for _, f := range frames {
		out = append(out, f.Data...)
	}
	return out
}
