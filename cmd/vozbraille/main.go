// Command vozbraille serves the spoken login and registration dialogue with
// braille password entry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/vozbraille/internal/app"
	"github.com/MrWong99/vozbraille/internal/config"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/resilience"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	"github.com/MrWong99/vozbraille/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/vozbraille/pkg/provider/stt/openai"
	"github.com/MrWong99/vozbraille/pkg/provider/stt/whisper"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
	"github.com/MrWong99/vozbraille/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/vozbraille/pkg/provider/tts/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// API keys usually live in .env and are referenced as ${VAR} in the config.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vozbraille: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vozbraille: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vozbraille: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("vozbraille starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"mode", cfg.Server.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(ctx,
		observe.WithService(cfg.Observability.ServiceName, version),
		observe.AsGlobal(),
	)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := telemetry.Metrics

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithTelemetry(telemetry))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	for _, c := range closers {
		application.AddCloser(c)
	}
	application.AddCloser(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return telemetry.Shutdown(sctx)
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
		}
		application.ApplyConfig(diff)
		if len(diff.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to apply", "sections", diff.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() { _ = watcher.Run(ctx) }()
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("adiós")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := entry.OptionString("voice"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if voice := entry.OptionString("voice"); voice != "" {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	slog.Debug("registered providers", "stt", reg.STTNames(), "tts", reg.TTSNames())
}

// buildProviders instantiates the configured backends, puts each slot behind
// circuit breakers with its fallbacks and returns closers for backends that
// hold resources.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, []func() error, error) {
	var closers []func() error
	track := func(p any) {
		if c, ok := p.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
	}

	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
			metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}}

	// ── STT ───────────────────────────────────────────────────────────────────
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	track(primary)
	sttGroup := resilience.NewSTTFallback(meterSTT(primary, cfg.Providers.STT.Name, metrics), cfg.Providers.STT.Name, fbCfg)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		track(p)
		sttGroup.AddFallback(entry.Name, meterSTT(p, entry.Name, metrics))
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallback", true)
	}

	ps := &app.Providers{STT: sttGroup, STTHealthy: sttGroup.Healthy}

	// ── TTS ───────────────────────────────────────────────────────────────────
	if name := cfg.Providers.TTS.Name; name != "" {
		primary, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		track(primary)
		ttsGroup := resilience.NewTTSFallback(meterTTS(primary, name, metrics), name, fbCfg)
		slog.Info("provider created", "kind", "tts", "name", name)

		for _, entry := range cfg.Providers.TTSFallbacks {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			track(p)
			ttsGroup.AddFallback(entry.Name, meterTTS(p, entry.Name, metrics))
			slog.Info("provider created", "kind", "tts", "name", entry.Name, "fallback", true)
		}
		ps.TTS = ttsGroup
	}

	return ps, closers, nil
}

// ── Provider metrics ──────────────────────────────────────────────────────────

type meteredSTT struct {
	next    stt.Provider
	name    string
	metrics *observe.Metrics
}

func meterSTT(p stt.Provider, name string, m *observe.Metrics) stt.Provider {
	return &meteredSTT{next: p, name: name, metrics: m}
}

func (p *meteredSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	tr, err := p.next.Transcribe(ctx, req)
	recordCall(ctx, p.metrics, p.name, "stt", err)
	return tr, err
}

type meteredTTS struct {
	next    tts.Provider
	name    string
	metrics *observe.Metrics
}

func meterTTS(p tts.Provider, name string, m *observe.Metrics) tts.Provider {
	return &meteredTTS{next: p, name: name, metrics: m}
}

func (p *meteredTTS) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	clip, err := p.next.Synthesize(ctx, text, voice)
	recordCall(ctx, p.metrics, p.name, "tts", err)
	return clip, err
}

func recordCall(ctx context.Context, m *observe.Metrics, provider, kind string, err error) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, provider, kind, "ok")
	case errors.Is(err, context.Canceled):
		m.RecordProviderRequest(ctx, provider, kind, "cancelled")
	default:
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       VozBraille · startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Fallbacks       : %-19s ║\n",
		fmt.Sprintf("%d stt, %d tts", len(cfg.Providers.STTFallbacks), len(cfg.Providers.TTSFallbacks)))
	clips := cfg.Prompts.ClipsDir
	if clips == "" {
		clips = "(synthesized)"
	}
	printRow("Prompt clips", clips)
	printRow("Mode", string(cfg.Server.Mode)+" / "+string(cfg.Audio.Codec))
	fmt.Printf("║  Max sessions    : %-19d ║\n", cfg.Server.MaxSessions)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reloadOnHangup re-reads the config on SIGHUP without waiting for the next
// poll.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := w.Reload(); err != nil && !errors.Is(err, config.ErrUnchanged) {
				slog.Warn("config reload on SIGHUP failed", "err", err)
			}
		}
	}
}
