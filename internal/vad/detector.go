package vad

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// Option configures a [Detector].
type Option func(*Detector)

// WithClock replaces the wall clock. Tests use a fake clock to fire timers.
func WithClock(c Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithEventHandler registers the callback that receives timer-originated
// events. It is invoked without the detector lock held.
func WithEventHandler(fn func(Event)) Option {
	return func(d *Detector) { d.onEvent = fn }
}

// WithSampler overrides the level sampler used by [Detector.OnFrame].
func WithSampler(s *audio.LevelSampler) Option {
	return func(d *Detector) { d.sampler = s }
}

// Detector is a voice activity detector for one recorder. A detector runs
// one session at a time; [Detector.Start] begins a fresh session.
//
// All methods are safe for concurrent use.
type Detector struct {
	cfg     Config
	clock   Clock
	onEvent func(Event)
	sampler *audio.LevelSampler

	mu      sync.Mutex
	gen     uint64
	state   State
	reason  StopReason
	ring    *levelRing
	window  int // samples observed since the window was last reset
	started bool
	grace   Timer
	backup  Timer
}

// New creates a detector. cfg is completed with defaults and validated.
func New(cfg Config, opts ...Option) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:   cfg,
		clock: SystemClock{},
		state: StateStopped,
		ring:  newLevelRing(cfg.HistorySize),
	}
	for _, o := range opts {
		o(d)
	}
	if d.sampler == nil {
		d.sampler = audio.NewLevelSampler()
	}
	return d, nil
}

// Config returns the effective tuning.
func (d *Detector) Config() Config { return d.cfg }

// Start begins a new session in Idle and arms the backup ceiling. Any
// previous session is torn down first.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.teardownLocked()
	d.state = StateIdle
	d.reason = ""
	d.started = false
	d.ring.reset()
	d.window = 0

	gen := d.gen
	d.backup = d.clock.AfterFunc(d.cfg.BackupCeiling, func() { d.fireBackup(gen) })
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reason returns why the last session stopped, or "" while it is running.
func (d *Detector) Reason() StopReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// History returns the retained levels, oldest first.
func (d *Detector) History() []audio.LevelSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring.snapshot()
}

// OnFrame samples the frame's level and feeds it to [Detector.OnLevel].
func (d *Detector) OnFrame(frame audio.AudioFrame) (Event, bool) {
	return d.onSample(d.sampler.Sample(frame))
}

// OnLevel feeds one level (0..100) and returns the event it caused, if any.
// Levels delivered after the session stopped are ignored.
func (d *Detector) OnLevel(level int) (Event, bool) {
	return d.onSample(audio.LevelSample{Level: max(0, min(100, level))})
}

func (d *Detector) onSample(s audio.LevelSample) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateStopped {
		return Event{}, false
	}
	d.ring.push(s)
	d.window++
	avg := d.ring.trailingAverage(min(d.cfg.AnalysisWindow, d.window))

	switch d.state {
	case StateIdle:
		if avg >= float64(d.cfg.VoiceThreshold) {
			d.state = StateVoiceDetected
			stopTimer(&d.backup)
			if !d.started {
				d.started = true
				return d.eventLocked(VoiceStarted, "", s.Level), true
			}
		}

	case StateVoiceDetected:
		if avg < float64(d.cfg.SilenceThreshold) {
			d.state = StateGraceSilence
			gen := d.gen
			d.grace = d.clock.AfterFunc(d.cfg.GracePeriod, func() { d.fireGrace(gen) })
			return d.eventLocked(SilenceAfterVoice, "", s.Level), true
		}

	case StateGraceSilence:
		if s.Level >= d.cfg.VoiceThreshold {
			// Voice resumed; the window restarts so the pre-resume silence
			// cannot immediately re-arm the countdown.
			stopTimer(&d.grace)
			d.state = StateVoiceDetected
			d.window = 1
		}
	}
	return Event{}, false
}

// Stop forces the session to Stopped with the given reason and returns the
// StopRecording event. It reports false if the session was already stopped.
func (d *Detector) Stop(reason StopReason) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateStopped {
		return Event{}, false
	}
	return d.stopLocked(reason), true
}

// Fail flushes the session to Stopped after a source failure and releases
// all pending timers.
func (d *Detector) Fail(err error) (Event, bool) {
	slog.Warn("vad: frame source failed, stopping session", "err", err)
	return d.Stop(ReasonFailure)
}

// Reset tears the session down without emitting an event. Pending timers
// become no-ops.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teardownLocked()
	d.state = StateStopped
}

func (d *Detector) fireGrace(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.state != StateGraceSilence {
		d.mu.Unlock()
		return
	}
	ev := d.stopLocked(ReasonSilence)
	handler := d.onEvent
	d.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

func (d *Detector) fireBackup(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.state != StateIdle || d.started {
		d.mu.Unlock()
		return
	}
	ev := d.stopLocked(ReasonTimeout)
	handler := d.onEvent
	d.mu.Unlock()

	slog.Debug("vad: no voice before backup ceiling", "ceiling", d.cfg.BackupCeiling)
	if handler != nil {
		handler(ev)
	}
}

func (d *Detector) stopLocked(reason StopReason) Event {
	d.teardownLocked()
	d.state = StateStopped
	d.reason = reason
	return d.eventLocked(StopRecording, reason, 0)
}

// teardownLocked cancels timers and invalidates callbacks already in flight.
func (d *Detector) teardownLocked() {
	d.gen++
	stopTimer(&d.grace)
	stopTimer(&d.backup)
}

func (d *Detector) eventLocked(t EventType, reason StopReason, level int) Event {
	return Event{Type: t, Reason: reason, Level: level, At: d.clock.Now()}
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
