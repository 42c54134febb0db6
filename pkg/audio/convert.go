package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter brings frames to a fixed target format, e.g. 48 kHz stereo Opus
// output down to the 16 kHz mono the VAD and transcribers expect.
// Create one per stream; it is not safe for concurrent use.
type Converter struct {
	Target Format

	warnOnce sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned as-is. Frames with an odd byte count are corrupt for
// 16-bit PCM and come back with nil Data.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	out := AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	if len(frame.Data)%2 != 0 {
		slog.Debug("audio: dropping frame with odd byte count", "bytes", len(frame.Data))
		return out
	}
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}
	c.warnOnce.Do(func() {
		slog.Info("audio: converting stream format",
			"from", describeFormat(frame.SampleRate, frame.Channels),
			"to", describeFormat(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	if frame.Channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	ch := min(frame.Channels, c.Target.Channels)
	if ch < 1 {
		ch = 1
	}
	pcm = Resample(pcm, ch, frame.SampleRate, c.Target.SampleRate)
	if ch == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	out.Data = pcm
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)*2)
	for i := 0; i+1 < len(pcm); i += 2 {
		out = append(out, pcm[i], pcm[i+1], pcm[i], pcm[i+1])
	}
	return out
}

// StereoToMono averages each L+R pair into one sample.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := range n {
		l := int32(sampleAt(pcm, 2*i))
		r := int32(sampleAt(pcm, 2*i+1))
		putSample(out, i, clamp16((l+r)/2))
	}
	return out
}

// Resample converts interleaved PCM with the given channel count from srcRate
// to dstRate using linear interpolation. Invalid rates or equal rates return
// the input unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}
	out := make([]byte, dstFrames*2*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := float64(sampleAt(pcm, idx*channels+ch))
			b := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, clamp16(int32(a+(b-a)*frac)))
		}
	}
	return out
}

// Float32Mono averages the channels of each interleaved frame into one
// sample scaled to [-1, 1), the input layout whisper.cpp models take.
func Float32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		out[i] = float32(sum) / float32(channels) / 32768
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
}

func putSample(pcm []byte, i int, s int16) {
	pcm[2*i] = byte(s)
	pcm[2*i+1] = byte(uint16(s) >> 8)
}

func clamp16(v int32) int16 {
	return int16(max(-32768, min(32767, v)))
}

func describeFormat(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
