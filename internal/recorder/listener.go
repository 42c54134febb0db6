package recorder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vozbraille/internal/vad"
	"github.com/MrWong99/vozbraille/pkg/audio"
)

// ListenerOption configures a [Listener].
type ListenerOption func(*Listener)

// WithObserver registers a callback that sees every detector event, in the
// order the detector produced them.
func WithObserver(fn func(vad.Event)) ListenerOption {
	return func(l *Listener) { l.observe = fn }
}

// WithFormat sets the format frames are converted to before detection and
// buffering. Defaults to 16 kHz mono.
func WithFormat(f audio.Format) ListenerOption {
	return func(l *Listener) { l.format = f }
}

// WithDetectorOptions passes extra options to the internal detector.
func WithDetectorOptions(opts ...vad.Option) ListenerOption {
	return func(l *Listener) { l.detOpts = append(l.detOpts, opts...) }
}

// WithSegmenterOptions passes options to the internal segmenter.
func WithSegmenterOptions(opts ...Option) ListenerOption {
	return func(l *Listener) { l.segOpts = append(l.segOpts, opts...) }
}

// Listener runs one recording at a time from an [audio.Source]: frames flow
// through format conversion, level sampling and voice activity detection into
// a [Segmenter] until the detector or the caller stops the session.
//
// A Listener must not run two Listen calls concurrently.
type Listener struct {
	format  audio.Format
	observe func(vad.Event)
	detOpts []vad.Option
	segOpts []Option

	det       *vad.Detector
	seg       *Segmenter
	timerEvts chan vad.Event
}

// NewListener creates a Listener using the given detector tuning.
func NewListener(cfg vad.Config, opts ...ListenerOption) (*Listener, error) {
	l := &Listener{
		format:    audio.Format{SampleRate: 16000, Channels: 1},
		timerEvts: make(chan vad.Event, 4),
	}
	for _, o := range opts {
		o(l)
	}
	detOpts := append([]vad.Option{vad.WithEventHandler(l.onTimerEvent)}, l.detOpts...)
	det, err := vad.New(cfg, detOpts...)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	l.det = det
	l.seg = NewSegmenter(l.segOpts...)
	return l, nil
}

// Detector exposes the underlying detector for inspection.
func (l *Listener) Detector() *vad.Detector { return l.det }

func (l *Listener) onTimerEvent(ev vad.Event) {
	select {
	case l.timerEvts <- ev:
	default:
		slog.Warn("recorder: dropped detector event", "event", ev.Type)
	}
}

// Listen records one utterance from src. It returns when the detector stops
// the session (silence after voice, or the backup ceiling), when the maximum
// duration is reached, or when ctx is cancelled.
//
// If the source ends or fails mid-session the detector is flushed to Stopped
// and the error wraps [audio.ErrInputUnavailable]. src is not closed.
func (l *Listener) Listen(ctx context.Context, src audio.Source) (Recording, error) {
	l.drainStale()
	l.det.Start()
	if _, err := l.seg.Start(); err != nil {
		l.det.Reset()
		return Recording{}, err
	}

	conv := audio.Converter{Target: l.format}
	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			l.stopDetector(vad.ReasonManual)
			rec, _ := l.seg.Stop(vad.ReasonManual)
			return rec, ctx.Err()

		case ev := <-l.timerEvts:
			l.emit(ev)
			if rec, done := l.seg.OnVadEvent(ev); done {
				return rec, nil
			}

		case f, ok := <-frames:
			if !ok {
				return l.failed(src.Err())
			}
			f = conv.Convert(f)
			if len(f.Data) == 0 {
				continue
			}
			if l.seg.OnFrame(f) {
				l.stopDetector(vad.ReasonMaxDuration)
				return l.seg.Stop(vad.ReasonMaxDuration)
			}
			if ev, ok := l.det.OnFrame(f); ok {
				l.emit(ev)
				l.seg.OnVadEvent(ev)
			}
		}
	}
}

func (l *Listener) failed(cause error) (Recording, error) {
	if ev, ok := l.det.Fail(cause); ok {
		l.emit(ev)
	}
	rec, _ := l.seg.Stop(vad.ReasonFailure)
	if cause == nil {
		return rec, fmt.Errorf("recorder: source closed mid-session: %w", audio.ErrInputUnavailable)
	}
	return rec, fmt.Errorf("recorder: %w: %w", audio.ErrInputUnavailable, cause)
}

func (l *Listener) stopDetector(reason vad.StopReason) {
	if ev, ok := l.det.Stop(reason); ok {
		l.emit(ev)
	}
}

func (l *Listener) emit(ev vad.Event) {
	if l.observe != nil {
		l.observe(ev)
	}
}

// drainStale discards timer events left over from a previous session.
func (l *Listener) drainStale() {
	for {
		select {
		case <-l.timerEvts:
		default:
			return
		}
	}
}
