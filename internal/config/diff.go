package config

import (
	"reflect"
	"time"

	"github.com/MrWong99/vozbraille/internal/vad"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is set when detector tuning changed. New sessions use NewVAD.
	VADChanged bool
	NewVAD     vad.Config

	// CooldownChanged is set when the prompt cooldown changed. New sessions
	// use NewCooldown.
	CooldownChanged bool
	NewCooldown     time.Duration

	// RestartRequired names the changed sections that only take effect after
	// a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VADChanged || d.CooldownChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}
	if old.Prompts.Cooldown != new.Prompts.Cooldown {
		d.CooldownChanged = true
		d.NewCooldown = new.Prompts.Cooldown
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldPrompts, newPrompts := old.Prompts, new.Prompts
	oldPrompts.Cooldown, newPrompts.Cooldown = 0, 0

	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"recorder", old.Recorder, new.Recorder},
		{"prompts", oldPrompts, newPrompts},
		{"dialogue", old.Dialogue, new.Dialogue},
		{"providers", old.Providers, new.Providers},
		{"resilience", old.Resilience, new.Resilience},
		{"observability", old.Observability, new.Observability},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
