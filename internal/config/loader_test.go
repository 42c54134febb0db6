package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/vozbraille/internal/config"
)

const validProviders = `
providers:
  stt:
    name: whisper
  tts:
    name: openai
`

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: loud\n" + validProviders,
			wantErr: "server.log_level",
		},
		{
			name:    "bad mode",
			yaml:    "server:\n  mode: phone\n" + validProviders,
			wantErr: "server.mode",
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n" + validProviders,
			wantErr: "server.tls",
		},
		{
			name:    "bad codec",
			yaml:    "audio:\n  codec: mp3\n" + validProviders,
			wantErr: "audio.codec",
		},
		{
			name:    "three channels",
			yaml:    "audio:\n  channels: 3\n" + validProviders,
			wantErr: "audio.channels",
		},
		{
			name:    "odd frame size",
			yaml:    "audio:\n  frame_ms: 25\n" + validProviders,
			wantErr: "audio.frame_ms",
		},
		{
			name:    "opus at 44.1 kHz",
			yaml:    "audio:\n  codec: opus\n  sample_rate: 44100\n" + validProviders,
			wantErr: "not an opus rate",
		},
		{
			name:    "silence above voice",
			yaml:    "vad:\n  voice_threshold: 30\n  silence_threshold: 35\n" + validProviders,
			wantErr: "silence_threshold",
		},
		{
			name:    "explicit zero silence threshold",
			yaml:    "vad:\n  silence_threshold: 0\n" + validProviders,
			wantErr: "vad.silence_threshold must not be 0",
		},
		{
			name:    "explicit zero grace period",
			yaml:    "vad:\n  grace_period: 0s\n" + validProviders,
			wantErr: "vad.grace_period must not be 0",
		},
		{
			name:    "negative cooldown",
			yaml:    "prompts:\n  cooldown: -1s\n" + validProviders,
			wantErr: "prompts.cooldown",
		},
		{
			name:    "speed out of range",
			yaml:    "prompts:\n  speed: 9\n" + validProviders,
			wantErr: "prompts.speed",
		},
		{
			name:    "missing stt",
			yaml:    "providers:\n  tts:\n    name: openai\n",
			wantErr: "providers.stt.name is required",
		},
		{
			name:    "no way to speak",
			yaml:    "providers:\n  stt:\n    name: whisper\n",
			wantErr: "prompts.clips_dir or providers.tts",
		},
		{
			name:    "unnamed fallback",
			yaml:    validProviders + "  stt_fallbacks:\n    - model: whisper-1\n",
			wantErr: "providers.stt_fallbacks[0].name",
		},
		{
			name:    "tts fallback without primary",
			yaml:    "prompts:\n  clips_dir: ./clips\nproviders:\n  stt:\n    name: whisper\n  tts_fallbacks:\n    - name: elevenlabs\n",
			wantErr: "providers.tts_fallbacks requires providers.tts",
		},
		{
			name:    "negative max failures",
			yaml:    "resilience:\n  max_failures: -2\n" + validProviders,
			wantErr: "resilience.max_failures",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ClipsOnlyIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
prompts:
  clips_dir: ./clips
providers:
  stt:
    name: whisper-native
    options:
      model_path: ./models/ggml-base.bin
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProviderNameIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: my-custom-stt
  tts:
    name: my-custom-tts
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
  mode: phone
audio:
  codec: mp3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "server.mode", "audio.codec", "providers.stt.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}
