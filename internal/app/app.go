// Package app wires the voice dialogue subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads prompt clips and builds
// the HTTP surface, Run serves it (and, in mic mode, runs the local
// dialogue), and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithLibrary, WithMicOpener). Providers always come from the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vozbraille/internal/config"
	"github.com/MrWong99/vozbraille/internal/health"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/audio/browser"
	"github.com/MrWong99/vozbraille/pkg/audio/mic"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	// STT is required.
	STT stt.Provider

	// TTS may be nil when every prompt has a recorded clip.
	TTS tts.Provider

	// STTHealthy feeds the readiness probe. Nil means always healthy.
	STTHealthy func() bool
}

// MicOpener opens the local audio device for mic mode.
type MicOpener func() (Device, error)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	scrape   http.Handler
	library  *prompt.ClipLibrary
	sessions *SessionManager
	handler  http.Handler
	server   *http.Server
	openMic  MicOpener

	tuning atomic.Pointer[Tuning]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry records metrics on t and serves its registry on /metrics.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) {
		a.metrics = t.Metrics
		a.scrape = t.Handler()
	}
}

// WithLibrary injects a clip library instead of loading prompts.clips_dir.
func WithLibrary(lib *prompt.ClipLibrary) Option {
	return func(a *App) { a.library = lib }
}

// WithMicOpener replaces the PortAudio device used in mic mode.
func WithMicOpener(fn MicOpener) Option {
	return func(a *App) { a.openMic = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg, which must already be validated. The
// providers struct comes from main.go.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}
	if a.openMic == nil {
		a.openMic = a.defaultMic
	}
	a.tuning.Store(&Tuning{VAD: cfg.VAD.WithDefaults(), Cooldown: cfg.Prompts.Cooldown})

	// ── 1. Prompt clips ──────────────────────────────────────────────────
	if err := a.initLibrary(); err != nil {
		return nil, fmt.Errorf("app: init prompts: %w", err)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:  cfg,
		STT:     providers.STT,
		TTS:     a.synthesizer(),
		Library: a.library,
		Metrics: a.metrics,
		Tuning:  func() Tuning { return *a.tuning.Load() },
	})

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	slog.InfoContext(ctx, "app initialised",
		"mode", cfg.Server.Mode,
		"clips", a.library != nil,
		"tts", providers.TTS != nil,
		"max_sessions", cfg.Server.MaxSessions,
	)
	return a, nil
}

// initLibrary loads and checks the recorded prompts. Missing clips are
// tolerated only when TTS can speak them instead.
func (a *App) initLibrary() error {
	if a.library == nil && a.cfg.Prompts.ClipsDir != "" {
		a.library = prompt.NewClipLibrary(os.DirFS(a.cfg.Prompts.ClipsDir))
	}
	if a.library == nil {
		if a.providers.TTS == nil {
			return errors.New("no clip library and no TTS provider")
		}
		return nil
	}

	missing, err := a.library.Preload(prompt.IDs()...)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		if a.providers.TTS == nil {
			return fmt.Errorf("%d prompt clips missing and no TTS provider: %v", len(missing), missing)
		}
		slog.Warn("prompt clips missing, speaking them with TTS", "missing", missing)
	}
	return nil
}

// synthesizer wraps the TTS provider with latency metrics.
func (a *App) synthesizer() tts.Provider {
	if a.providers.TTS == nil {
		return nil
	}
	return &meteredTTS{next: a.providers.TTS, metrics: a.metrics}
}

func (a *App) defaultMic() (Device, error) {
	m, err := mic.Open(mic.Options{
		Format:  audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels},
		FrameMs: a.cfg.Audio.FrameMs,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// routes builds the HTTP handler: probes, metrics and, in browser mode, the
// voice socket.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	sttHealthy := a.providers.STTHealthy
	if sttHealthy == nil {
		sttHealthy = func() bool { return true }
	}
	health.New(
		health.Healthy("stt", sttHealthy),
		health.Capacity("sessions", a.sessions.Active, a.cfg.Server.MaxSessions),
	).Register(mux)

	if a.cfg.Observability.MetricsEnabled() {
		mux.Handle("GET /metrics", a.scrape)
	}
	if a.cfg.Server.Mode == config.ModeBrowser {
		mux.HandleFunc("GET /ws", a.serveWS)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the app's HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// serveWS runs one dialogue for the connecting browser.
func (a *App) serveWS(w http.ResponseWriter, r *http.Request) {
	if limit := a.cfg.Server.MaxSessions; limit > 0 && a.sessions.Active() >= limit {
		http.Error(w, "too many active sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := browser.Accept(w, r, browser.Options{
		Codec:          browser.Codec(a.cfg.Audio.Codec),
		Format:         audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels},
		FrameMs:        a.cfg.Audio.FrameMs,
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("websocket close", "err", err)
		}
	}()

	// A hijacked request's context outlives the socket, so end the session
	// when the browser goes away.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := a.sessions.Run(ctx, conn, r.RemoteAddr); errors.Is(err, ErrAtCapacity) || errors.Is(err, ErrStopped) {
		_ = conn.Send(ctx, browser.Control{Type: "unavailable"})
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled. In mic mode it also runs one
// dialogue on the local device and returns once that dialogue ends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String())
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	if a.cfg.Server.Mode == config.ModeMic {
		g.Go(func() error {
			defer stop()
			return a.runMic(gctx)
		})
	}
	return g.Wait()
}

// runMic runs the single local dialogue. Its outcome ends the process; a
// user cancel or a failed dialogue is not a process error.
func (a *App) runMic(ctx context.Context) error {
	dev, err := a.openMic()
	if err != nil {
		return fmt.Errorf("app: open microphone: %w", err)
	}
	if c, ok := dev.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("microphone close", "err", err)
			}
		}()
	}

	_, err = a.sessions.Run(ctx, dev, "mic")
	if errors.Is(err, audio.ErrInputUnavailable) {
		return fmt.Errorf("app: microphone: %w", err)
	}
	return nil
}

// ApplyConfig applies the hot-reloadable part of a config change. Running
// sessions keep the tuning they started with.
func (a *App) ApplyConfig(diff config.ConfigDiff) {
	if !diff.VADChanged && !diff.CooldownChanged {
		return
	}
	cur := *a.tuning.Load()
	if diff.VADChanged {
		cur.VAD = diff.NewVAD.WithDefaults()
	}
	if diff.CooldownChanged {
		cur.Cooldown = diff.NewCooldown
	}
	a.tuning.Store(&cur)
	slog.Info("session tuning updated", "vad_changed", diff.VADChanged, "cooldown", cur.Cooldown)
}

// Tuning returns the settings new sessions start with.
func (a *App) Tuning() Tuning { return *a.tuning.Load() }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops running sessions, closes the HTTP server and runs the
// registered closers. It is safe to call more than once; only the first
// call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if err := a.sessions.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// AddCloser registers fn to run during Shutdown, after the server stops.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── metered TTS ─────────────────────────────────────────────────────────────

type meteredTTS struct {
	next    tts.Provider
	metrics *observe.Metrics
}

var _ tts.Provider = (*meteredTTS)(nil)

func (m *meteredTTS) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	ctx, span := observe.StartSpan(ctx, "tts.Synthesize")
	defer span.End()

	start := time.Now()
	clip, err := m.next.Synthesize(ctx, text, voice)
	m.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	return clip, err
}
