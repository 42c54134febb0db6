package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samplesOf(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestChannelConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   []int16
		want []int16
	}{
		{name: "mono to stereo", fn: audio.MonoToStereo, in: []int16{100, -200}, want: []int16{100, 100, -200, -200}},
		{name: "stereo to mono averages", fn: audio.StereoToMono, in: []int16{100, 200, -100, -300}, want: []int16{150, -200}},
		{name: "stereo to mono at full scale", fn: audio.StereoToMono, in: []int16{32767, 32767}, want: []int16{32767}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := samplesOf(tt.fn(pcm16(tt.in...)))
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonoToStereo_IgnoresTrailingByte(t *testing.T) {
	t.Parallel()
	in := append(pcm16(7, 8), 0xFF)
	if got := samplesOf(audio.MonoToStereo(in)); !slices.Equal(got, []int16{7, 7, 8, 8}) {
		t.Errorf("got %v", got)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	up := samplesOf(audio.Resample(pcm16(1000, 2000), 1, 16000, 48000))
	if len(up) != 6 {
		t.Fatalf("upsample: got %d samples, want 6", len(up))
	}
	if up[0] != 1000 || up[len(up)-1] != 2000 {
		t.Errorf("upsample endpoints: got %d..%d", up[0], up[len(up)-1])
	}

	down := audio.Resample(pcm16(1, 2, 3, 4, 5, 6), 1, 48000, 16000)
	if n := len(down) / 2; n != 2 {
		t.Errorf("downsample: got %d samples, want 2", n)
	}

	stereo := audio.Resample(pcm16(1, 2, 3, 4), 2, 16000, 48000)
	if n := len(stereo) / 2; n != 12 {
		t.Errorf("stereo upsample: got %d samples, want 12", n)
	}

	in := pcm16(1, 2)
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 16000}, {16000, 16000}} {
		if got := audio.Resample(in, 1, rates[0], rates[1]); len(got) != len(in) {
			t.Errorf("rates %v: expected unchanged input, got %d bytes", rates, len(got))
		}
	}
}

func TestConverter(t *testing.T) {
	t.Parallel()

	t.Run("matching format is passed through", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
		f := audio.AudioFrame{Data: pcm16(1, 2), SampleRate: 16000, Channels: 1}
		got := c.Convert(f)
		if &got.Data[0] != &f.Data[0] {
			t.Error("expected the same backing slice")
		}
	})

	t.Run("browser opus to stt format", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
		samples := make([]int16, 960*2) // 20 ms of 48 kHz stereo
		got := c.Convert(audio.AudioFrame{Data: pcm16(samples...), SampleRate: 48000, Channels: 2})
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Fatalf("format: got %dHz %dch", got.SampleRate, got.Channels)
		}
		if n := len(got.Data) / 2; n != 320 {
			t.Errorf("got %d samples, want 320", n)
		}
	})

	t.Run("odd byte count is dropped", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
		got := c.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
		if got.Data != nil {
			t.Errorf("expected nil data, got %d bytes", len(got.Data))
		}
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Errorf("dropped frame should carry the target format")
		}
	})
}

func TestFloat32Mono(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float32
	}{
		{"empty", nil, 1, []float32{}},
		{"mono full scale", pcm16(-32768, 0, 16384), 1, []float32{-1, 0, 0.5}},
		{"zero channels treated as mono", pcm16(16384), 0, []float32{0.5}},
		{"stereo averaged", pcm16(16384, -16384, 8192, 8192), 2, []float32{0, 0.25}},
		{"three channels", pcm16(3276, 6553, 9830), 3, []float32{6553.0 / 32768}},
		{"partial frame dropped", append(pcm16(16384, 16384), 0x01), 2, []float32{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Float32Mono(tt.pcm, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if d := got[i] - tt.want[i]; d > 1e-4 || d < -1e-4 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
