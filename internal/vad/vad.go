// Package vad implements a level-based voice activity detector that bounds a
// recording without manual start and stop.
//
// The detector consumes one loudness level (0..100) per audio frame and moves
// through Idle → VoiceDetected ⇄ GraceSilence → Stopped. Two thresholds give
// hysteresis: voice starts at or above VoiceThreshold, but once voice is
// present only a trailing average below the lower SilenceThreshold starts the
// grace countdown. A backup ceiling stops sessions that never hear voice.
//
// Events caused directly by a level are returned from [Detector.OnLevel].
// Events caused by timers (grace expiry, backup ceiling) are delivered to the
// handler registered with [WithEventHandler]. A session generation counter
// makes timer callbacks that outlive their session harmless no-ops.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// State is the detector's position in a recording session.
type State int

const (
	// StateIdle means the session is listening but has not heard voice yet.
	StateIdle State = iota

	// StateVoiceDetected means voice is present.
	StateVoiceDetected

	// StateGraceSilence means voice dipped below the silence threshold and the
	// grace timer is running.
	StateGraceSilence

	// StateStopped is terminal for the session.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVoiceDetected:
		return "voice_detected"
	case StateGraceSilence:
		return "grace_silence"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType enumerates detector events.
type EventType int

const (
	// VoiceStarted is emitted once per session when voice is first detected.
	VoiceStarted EventType = iota + 1

	// SilenceAfterVoice is emitted when the grace countdown starts.
	SilenceAfterVoice

	// StopRecording is emitted exactly once when the session reaches Stopped.
	StopRecording
)

// String returns the lowercase event name.
func (t EventType) String() string {
	switch t {
	case VoiceStarted:
		return "voice_started"
	case SilenceAfterVoice:
		return "silence_after_voice"
	case StopRecording:
		return "stop_recording"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// StopReason explains why a session reached Stopped.
type StopReason string

const (
	// ReasonSilence: the grace period after voice elapsed.
	ReasonSilence StopReason = "silence"

	// ReasonTimeout: no voice was detected before the backup ceiling.
	ReasonTimeout StopReason = "timeout"

	// ReasonFailure: the frame source errored or disconnected.
	ReasonFailure StopReason = "failure"

	// ReasonManual: the caller stopped the session.
	ReasonManual StopReason = "manual"

	// ReasonMaxDuration: the recording exceeded its length limit.
	ReasonMaxDuration StopReason = "max_duration"
)

// Event is a single detector output.
type Event struct {
	Type EventType

	// Reason is set on StopRecording only.
	Reason StopReason

	// Level is the level that triggered the event; zero for timer events.
	Level int

	// At is the clock time the event was produced.
	At time.Time
}

// Config holds detector tuning. Numeric defaults suit a laptop microphone and
// are meant to be overridden per deployment.
type Config struct {
	// HistorySize is the capacity of the level ring buffer.
	HistorySize int `yaml:"history_size"`

	// AnalysisWindow is the number of trailing levels averaged for the
	// voice and silence decisions.
	AnalysisWindow int `yaml:"analysis_window"`

	// VoiceThreshold is the trailing average (0..100) at or above which voice
	// is detected.
	VoiceThreshold int `yaml:"voice_threshold"`

	// SilenceThreshold is the trailing average below which the grace
	// countdown starts. Must be in 1..VoiceThreshold-1: levels never average
	// below 0, so a threshold of 0 could never end a session.
	SilenceThreshold int `yaml:"silence_threshold"`

	// GracePeriod is how long silence must last after voice before the
	// session stops.
	GracePeriod time.Duration `yaml:"grace_period"`

	// BackupCeiling stops a session that never detects voice.
	BackupCeiling time.Duration `yaml:"backup_ceiling"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		HistorySize:      30,
		AnalysisWindow:   5,
		VoiceThreshold:   50,
		SilenceThreshold: 40,
		GracePeriod:      800 * time.Millisecond,
		BackupCeiling:    10 * time.Second,
	}
}

// WithDefaults returns c with zero fields replaced by [DefaultConfig] values.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.HistorySize == 0 {
		c.HistorySize = d.HistorySize
	}
	if c.AnalysisWindow == 0 {
		c.AnalysisWindow = d.AnalysisWindow
	}
	if c.VoiceThreshold == 0 {
		c.VoiceThreshold = d.VoiceThreshold
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.BackupCeiling == 0 {
		c.BackupCeiling = d.BackupCeiling
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("vad: history_size must be positive, got %d", c.HistorySize))
	}
	if c.AnalysisWindow < 1 || c.AnalysisWindow > c.HistorySize {
		errs = append(errs, fmt.Errorf("vad: analysis_window must be in 1..history_size, got %d", c.AnalysisWindow))
	}
	if c.VoiceThreshold < 1 || c.VoiceThreshold > 100 {
		errs = append(errs, fmt.Errorf("vad: voice_threshold must be in 1..100, got %d", c.VoiceThreshold))
	}
	if c.SilenceThreshold < 1 || c.SilenceThreshold >= c.VoiceThreshold {
		errs = append(errs, fmt.Errorf("vad: silence_threshold must be in 1..voice_threshold-1, got %d", c.SilenceThreshold))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("vad: grace_period must be positive"))
	}
	if c.BackupCeiling <= 0 {
		errs = append(errs, errors.New("vad: backup_ceiling must be positive"))
	}
	return errors.Join(errs...)
}
