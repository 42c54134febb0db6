package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vozbraille/internal/vad"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram", "openai"},
	"tts": {"openai", "elevenlabs"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = ":8080"
	DefaultMaxSessions  = 16
	DefaultSampleRate   = 16000
	DefaultFrameMs      = 20
	DefaultMaxRetries   = 3
	DefaultLanguage     = "es"
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
	DefaultCooldown     = 2500 * time.Millisecond
	DefaultMaxDuration  = 30 * time.Second
	DefaultServiceName  = "vozbraille"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	zeros := explicitVADZeros(expanded, cfg)
	ApplyDefaults(cfg)
	if err := errors.Join(append(zeros, Validate(cfg))...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// vadDefaulted are the vad keys whose zero value [vad.Config.WithDefaults]
// replaces.
var vadDefaulted = map[string]func(vad.Config) bool{
	"history_size":      func(c vad.Config) bool { return c.HistorySize == 0 },
	"analysis_window":   func(c vad.Config) bool { return c.AnalysisWindow == 0 },
	"voice_threshold":   func(c vad.Config) bool { return c.VoiceThreshold == 0 },
	"silence_threshold": func(c vad.Config) bool { return c.SilenceThreshold == 0 },
	"grace_period":      func(c vad.Config) bool { return c.GracePeriod == 0 },
	"backup_ceiling":    func(c vad.Config) bool { return c.BackupCeiling == 0 },
}

// explicitVADZeros rejects vad keys written out as 0. Defaulting would turn
// them into the stock value without a word, so the file is refused instead.
func explicitVADZeros(doc string, cfg *Config) []error {
	var raw struct {
		VAD map[string]yaml.Node `yaml:"vad"`
	}
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil
	}
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(raw.VAD)) {
		node := raw.VAD[key]
		isZero, ok := vadDefaulted[key]
		if !ok || node.ShortTag() == "!!null" || !isZero(cfg.VAD) {
			continue
		}
		errs = append(errs, fmt.Errorf("vad.%s must not be 0; omit it to use the default", key))
	}
	return errs
}

// ApplyDefaults fills every zero field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = ModeBrowser
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = DefaultMaxSessions
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = DefaultFrameMs
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = CodecPCM16
	}

	cfg.VAD = cfg.VAD.WithDefaults()

	if cfg.Recorder.MaxDuration == 0 {
		cfg.Recorder.MaxDuration = DefaultMaxDuration
	}
	if cfg.Prompts.Cooldown == 0 {
		cfg.Prompts.Cooldown = DefaultCooldown
	}

	if cfg.Dialogue.Language == "" {
		cfg.Dialogue.Language = DefaultLanguage
	}
	if cfg.Dialogue.MaxRetries == 0 {
		cfg.Dialogue.MaxRetries = DefaultMaxRetries
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Mode != "" && !cfg.Server.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("server.mode %q is invalid; valid values: browser, mic", cfg.Server.Mode))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMs != 0 && !slices.Contains([]int{10, 20, 40, 60}, cfg.Audio.FrameMs) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 40, 60", cfg.Audio.FrameMs))
	}
	if cfg.Audio.Codec != "" && !cfg.Audio.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: pcm16, opus", cfg.Audio.Codec))
	}
	if cfg.Audio.Codec == CodecOpus && cfg.Audio.SampleRate != 0 &&
		!slices.Contains([]int{8000, 12000, 16000, 24000, 48000}, cfg.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is not an opus rate", cfg.Audio.SampleRate))
	}

	// VAD
	if err := cfg.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Recorder, prompts, dialogue
	if cfg.Recorder.MaxDuration < 0 {
		errs = append(errs, errors.New("recorder.max_duration must not be negative"))
	}
	if cfg.Prompts.Cooldown < 0 {
		errs = append(errs, errors.New("prompts.cooldown must not be negative"))
	}
	if cfg.Prompts.Speed != 0 && (cfg.Prompts.Speed < 0.25 || cfg.Prompts.Speed > 4.0) {
		errs = append(errs, fmt.Errorf("prompts.speed %.2f is out of range [0.25, 4.0]", cfg.Prompts.Speed))
	}
	if cfg.Dialogue.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("dialogue.max_retries %d must not be negative", cfg.Dialogue.MaxRetries))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" && cfg.Prompts.ClipsDir == "" {
		errs = append(errs, errors.New("either prompts.clips_dir or providers.tts must be configured"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Providers.TTSFallbacks) > 0 {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience.reset_timeout must not be negative"))
	}

	if cfg.Server.Mode == ModeMic && cfg.Server.MaxSessions > 1 {
		slog.Debug("server.max_sessions is ignored in mic mode")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
