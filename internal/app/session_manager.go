package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vozbraille/internal/config"
	"github.com/MrWong99/vozbraille/internal/dialogue"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/internal/recorder"
	"github.com/MrWong99/vozbraille/internal/vad"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

// ErrAtCapacity is returned by [SessionManager.Run] when MaxSessions
// dialogues are already running.
var ErrAtCapacity = errors.New("app: too many active sessions")

// ErrStopped is returned by [SessionManager.Run] after StopAll.
var ErrStopped = errors.New("app: session manager stopped")

// eventBuffer bounds the dialogue events queued for a slow client.
const eventBuffer = 64

// Device is one user's audio endpoint: their microphone and their speaker.
type Device interface {
	audio.Source
	audio.Sink
}

// EventSender is implemented by devices that can show dialogue progress to
// the user, such as a browser connection.
type EventSender interface {
	Send(ctx context.Context, v any) error
}

// Tuning holds the settings that apply to sessions started after a config
// reload.
type Tuning struct {
	VAD      vad.Config
	Cooldown time.Duration
}

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Remote describes the peer, e.g. the browser's address or "mic".
	Remote string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

type session struct {
	info   SessionInfo
	cancel context.CancelFunc
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config *config.Config

	// STT transcribes every utterance. Required.
	STT stt.Provider

	// TTS speaks prompts without a recorded clip. Optional when Library is
	// set.
	TTS tts.Provider

	// Library holds the recorded prompt clips. Optional when TTS is set.
	Library *prompt.ClipLibrary

	Metrics *observe.Metrics

	// Tuning returns the current reloadable settings. Each session reads it
	// once at start.
	Tuning func() Tuning
}

// SessionManager runs concurrent voice dialogues, one per device, up to the
// configured limit. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	stopped  bool
	wg       sync.WaitGroup

	cfg     *config.Config
	stt     stt.Provider
	tts     tts.Provider
	library *prompt.ClipLibrary
	metrics *observe.Metrics
	tuning  func() Tuning
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*session),
		cfg:      cfg.Config,
		stt:      cfg.STT,
		tts:      cfg.TTS,
		library:  cfg.Library,
		metrics:  cfg.Metrics,
		tuning:   cfg.Tuning,
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.tuning == nil {
		t := Tuning{VAD: cfg.Config.VAD.WithDefaults(), Cooldown: cfg.Config.Prompts.Cooldown}
		sm.tuning = func() Tuning { return t }
	}
	return sm
}

// Run runs one dialogue on dev and blocks until it ends. The dialogue
// outcome is returned; persisting it is the caller's job. dev is not closed.
//
// If dev implements [EventSender], every dialogue event is forwarded to it.
// Returns [ErrAtCapacity] without touching dev when the limit is reached.
func (sm *SessionManager) Run(ctx context.Context, dev Device, remote string) (dialogue.Outcome, error) {
	ctx, s, err := sm.register(ctx, remote)
	if err != nil {
		return dialogue.Outcome{}, err
	}
	defer sm.unregister(ctx, s)

	ctx = observe.WithSessionID(ctx, s.info.SessionID)
	log := observe.Logger(ctx)
	log.Info("session started", "remote", remote)

	out, err := sm.runDialogue(ctx, dev)
	switch {
	case err == nil:
		log.Info("session finished", "action", out.Action, "username", out.Username, "method", out.Method)
	case errors.Is(err, context.Canceled):
		log.Info("session stopped")
	default:
		log.Info("session ended without outcome", "err", err)
	}
	return out, err
}

func (sm *SessionManager) runDialogue(ctx context.Context, dev Device) (dialogue.Outcome, error) {
	tuning := sm.tuning()
	bus := evbus.New()

	rec, err := recorder.NewListener(tuning.VAD,
		recorder.WithObserver(dialogue.VADObserver(bus, sm.metrics)),
		recorder.WithSegmenterOptions(recorder.WithMaxDuration(sm.cfg.Recorder.MaxDuration)),
	)
	if err != nil {
		return dialogue.Outcome{}, fmt.Errorf("app: %w", err)
	}

	q := sm.newQueue(dev, bus, tuning.Cooldown)
	defer func() {
		if err := q.Close(); err != nil {
			observe.Logger(ctx).Debug("prompt queue close", "err", err)
		}
	}()

	pump := &eventPump{ch: make(chan dialogue.Event, eventBuffer)}
	if sender, ok := dev.(EventSender); ok {
		for _, topic := range dialogue.Topics {
			if err := bus.Subscribe(topic, pump.push); err != nil {
				return dialogue.Outcome{}, fmt.Errorf("app: subscribe %s: %w", topic, err)
			}
		}
		var g errgroup.Group
		g.Go(func() error { return forwardEvents(ctx, sender, pump.ch) })
		defer func() {
			pump.close()
			if err := g.Wait(); err != nil {
				observe.Logger(ctx).Debug("event forwarding stopped", "err", err)
			}
		}()
	}

	ctrl := dialogue.New(dev, rec, sm.stt, q,
		dialogue.WithBus(bus),
		dialogue.WithMetrics(sm.metrics),
		dialogue.WithMaxRetries(sm.cfg.Dialogue.MaxRetries),
		dialogue.WithLanguage(sm.cfg.Dialogue.Language),
	)
	return ctrl.Run(ctx)
}

// newQueue prefers recorded clips and falls back to synthesized speech.
func (sm *SessionManager) newQueue(sink audio.Sink, bus evbus.Bus, cooldown time.Duration) *prompt.Queue {
	opts := []prompt.Option{
		prompt.WithCooldown(cooldown),
		prompt.WithObserver(dialogue.PromptObserver(bus, sm.metrics)),
	}
	var speech prompt.Player
	if sm.tts != nil {
		voice := tts.Voice{
			ID:       sm.cfg.Prompts.Voice,
			Language: sm.cfg.Dialogue.Language,
			Speed:    sm.cfg.Prompts.Speed,
		}
		speech = prompt.NewSpeechPlayer(sm.tts, voice, sink)
	}
	if sm.library == nil {
		return prompt.New(speech, opts...)
	}
	if speech != nil {
		opts = append(opts, prompt.WithFallback(speech))
	}
	return prompt.New(prompt.NewLibraryPlayer(sm.library, sink), opts...)
}

func (sm *SessionManager) register(ctx context.Context, remote string) (context.Context, *session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stopped {
		return nil, nil, ErrStopped
	}
	if limit := sm.cfg.Server.MaxSessions; limit > 0 && len(sm.sessions) >= limit {
		return nil, nil, ErrAtCapacity
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		info: SessionInfo{
			SessionID: uuid.NewString(),
			Remote:    remote,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	sm.sessions[s.info.SessionID] = s
	sm.wg.Add(1)
	sm.metrics.ActiveSessions.Add(ctx, 1)
	return ctx, s, nil
}

func (sm *SessionManager) unregister(ctx context.Context, s *session) {
	s.cancel()
	sm.mu.Lock()
	delete(sm.sessions, s.info.SessionID)
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	sm.wg.Done()
}

// Active returns the number of running sessions.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// List returns a snapshot of the running sessions, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.info)
	}
	sm.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// StopAll cancels every running session and refuses new ones, then waits
// for them to return or for ctx to expire.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.stopped = true
	for _, s := range sm.sessions {
		s.cancel()
	}
	sm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: waiting for sessions: %w", ctx.Err())
	}
}

// eventPump buffers bus events for the forwarder. Pushing never blocks the
// publisher; events are dropped when the client falls behind.
type eventPump struct {
	mu     sync.Mutex
	closed bool
	ch     chan dialogue.Event
}

func (p *eventPump) push(ev dialogue.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
	}
}

func (p *eventPump) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

// forwardEvents sends events until ch is closed. After the first failed send
// the rest are discarded.
func forwardEvents(ctx context.Context, sender EventSender, ch <-chan dialogue.Event) error {
	var failed error
	for ev := range ch {
		if failed != nil {
			continue
		}
		// The closing outcome must still reach the user after a cancel.
		if err := sender.Send(context.WithoutCancel(ctx), ev); err != nil {
			failed = err
		}
	}
	return failed
}
