package audio

import (
	"math"
	"time"
)

// DefaultLevelGain scales normalised RMS before clamping to 0..100. Speech at
// a normal distance from a laptop microphone sits around RMS 0.1..0.2 of full
// scale, so the default gain maps it into the 40..80 band.
const DefaultLevelGain = 4.0

// LevelSample is the loudness of one frame on a 0..100 scale.
type LevelSample struct {
	Timestamp time.Duration
	Level     int
}

// LevelSampler maps PCM frames to a scalar loudness level. The zero value is
// not usable; create one with [NewLevelSampler].
type LevelSampler struct {
	gain float64
}

// LevelOption configures a [LevelSampler].
type LevelOption func(*LevelSampler)

// WithLevelGain overrides [DefaultLevelGain].
func WithLevelGain(g float64) LevelOption {
	return func(s *LevelSampler) {
		if g > 0 {
			s.gain = g
		}
	}
}

// NewLevelSampler returns a sampler with the given options applied.
func NewLevelSampler(opts ...LevelOption) *LevelSampler {
	s := &LevelSampler{gain: DefaultLevelGain}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sample returns the level of frame.
func (s *LevelSampler) Sample(frame AudioFrame) LevelSample {
	return LevelSample{Timestamp: frame.Timestamp, Level: s.Level(frame.Data)}
}

// Level returns the RMS loudness of pcm mapped to 0..100.
func (s *LevelSampler) Level(pcm []byte) int {
	rms := RMS(pcm) / 32768.0
	lvl := int(math.Round(rms * 100 * s.gain))
	return max(0, min(100, lvl))
}

// RMS returns the root-mean-square amplitude of 16-bit PCM, in raw sample
// units (0..32768). Returns 0 for empty input.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
