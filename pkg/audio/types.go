// Package audio defines the frame, clip, and stream contracts shared by every
// audio source and sink, plus the PCM helpers (level sampling, WAV encoding,
// format conversion) the voice pipeline builds on.
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// Channels > 1.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrInputUnavailable is returned when no audio source can be opened or the
// source disconnects mid-session.
var ErrInputUnavailable = errors.New("audio: input unavailable")

// AudioFrame is a timestamped block of PCM samples produced by a [Source].
// A frame is immutable once produced; consumers must not modify Data.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for browser Opus, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	return pcmDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Clip is a finished block of PCM audio ready for playback.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return pcmDuration(len(c.PCM), c.SampleRate, c.Channels)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Source delivers captured audio frames in arrival order.
//
// Frames is closed when the source ends, either because Close was called or
// because the underlying device or connection failed. After the channel is
// closed, Err reports the failure (nil on a clean Close).
type Source interface {
	Frames() <-chan AudioFrame
	Err() error
	Close() error
}

// Sink plays audio clips. Play blocks until the clip has been played or ctx
// is cancelled; cancelling ctx tears down the in-progress playback.
type Sink interface {
	Play(ctx context.Context, clip Clip) error
}

func pcmDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
