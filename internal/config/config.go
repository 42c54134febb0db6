// Package config provides the configuration schema, loader, and provider registry
// for the vozbraille voice interaction server.
package config

import (
	"time"

	"github.com/MrWong99/vozbraille/internal/vad"
)

// LogLevel controls log verbosity for the vozbraille server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects where the dialogue's audio comes from.
type Mode string

const (
	// ModeBrowser serves one dialogue per WebSocket connection.
	ModeBrowser Mode = "browser"

	// ModeMic runs a single dialogue on the local microphone and speaker.
	ModeMic Mode = "mic"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeBrowser || m == ModeMic
}

// Codec is the encoding of binary audio messages on the browser socket.
type Codec string

const (
	CodecPCM16 Codec = "pcm16"
	CodecOpus  Codec = "opus"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	return c == CodecPCM16 || c == CodecOpus
}

// Config is the root configuration structure for vozbraille.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           vad.Config          `yaml:"vad"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Prompts       PromptsConfig       `yaml:"prompts"`
	Dialogue      DialogueConfig      `yaml:"dialogue"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// Health and metrics endpoints are served in both modes.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// Mode selects browser or microphone operation. Default "browser".
	Mode Mode `yaml:"mode"`

	// MaxSessions caps concurrent browser dialogues. Default 16.
	MaxSessions int `yaml:"max_sessions"`

	// AllowedOrigins lists host patterns accepted on the WebSocket upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRate of captured audio in Hz. Browser opus audio is 48000; the
	// detector and transcription run on the converted 16 kHz mono stream.
	SampleRate int `yaml:"sample_rate"`

	// Channels of captured audio, 1 or 2.
	Channels int `yaml:"channels"`

	// FrameMs is the capture frame length in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// Codec is the browser socket codec. Ignored in mic mode.
	Codec Codec `yaml:"codec"`
}

// FrameDuration returns FrameMs as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// RecorderConfig bounds single recordings.
type RecorderConfig struct {
	// MaxDuration stops a recording that runs longer. Zero disables the limit.
	MaxDuration time.Duration `yaml:"max_duration"`
}

// PromptsConfig configures spoken prompts.
type PromptsConfig struct {
	// ClipsDir holds prerecorded <id>.mp3 clips. Prompts without a clip are
	// synthesized with the TTS provider.
	ClipsDir string `yaml:"clips_dir"`

	// Cooldown suppresses re-enqueueing the same prompt within the window.
	// Hot-reloadable for new sessions.
	Cooldown time.Duration `yaml:"cooldown"`

	// Voice is the TTS voice id used for synthesized prompts.
	Voice string `yaml:"voice"`

	// Speed is the TTS speaking rate; 0 keeps the provider default.
	Speed float64 `yaml:"speed"`
}

// DialogueConfig tunes the controller.
type DialogueConfig struct {
	// Language is the transcription and synthesis language. Default "es".
	Language string `yaml:"language"`

	// MaxRetries is the number of failed attempts allowed per step. Default 3.
	MaxRetries int `yaml:"max_retries"`
}

// ProvidersConfig declares which provider implementation to use for
// transcription and speech. Each entry selects a named provider registered in
// the [Registry]. Fallbacks are tried in order when the primary fails.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] when it is a string.
func (e ProviderEntry) OptionString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	// MaxFailures is the consecutive failure count that opens a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a breaker stays open before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ObservabilityConfig controls metrics and tracing.
type ObservabilityConfig struct {
	// Metrics enables the Prometheus /metrics endpoint. Default true.
	Metrics *bool `yaml:"metrics"`

	// ServiceName is the OpenTelemetry service name. Default "vozbraille".
	ServiceName string `yaml:"service_name"`
}

// MetricsEnabled reports whether /metrics should be served.
func (o ObservabilityConfig) MetricsEnabled() bool {
	return o.Metrics == nil || *o.Metrics
}
