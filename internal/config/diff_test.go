package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/vozbraille/internal/config"
	"github.com/MrWong99/vozbraille/internal/vad"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper"},
			TTS: config.ProviderEntry{Name: "openai"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone should not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_VADChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.VAD.VoiceThreshold = 60

	d := config.Diff(old, new)
	if !d.VADChanged {
		t.Fatal("expected VADChanged=true")
	}
	want := vad.DefaultConfig()
	want.VoiceThreshold = 60
	if d.NewVAD != want {
		t.Errorf("NewVAD: got %+v, want %+v", d.NewVAD, want)
	}
}

func TestDiff_CooldownChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Prompts.Cooldown = 5 * time.Second

	d := config.Diff(old, new)
	if !d.CooldownChanged || d.NewCooldown != 5*time.Second {
		t.Errorf("diff: got %+v, want cooldown change to 5s", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("cooldown alone should not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Providers.STT.Model = "large-v3"
	new.Prompts.Voice = "nova"
	new.Prompts.Cooldown = time.Second

	d := config.Diff(old, new)
	want := []string{"server", "prompts", "providers"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
	}
	if !d.CooldownChanged {
		t.Error("cooldown change should still be reported")
	}
}
