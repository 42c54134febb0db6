package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

func constantPCM(n int, v int16) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return pcm16(s...)
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("empty: got %v", got)
	}
	if got := audio.RMS(pcm16(1000, -1000, 1000, -1000)); got != 1000 {
		t.Errorf("square wave: got %v, want 1000", got)
	}
}

func TestLevelSampler_Level(t *testing.T) {
	t.Parallel()

	s := audio.NewLevelSampler()
	tests := []struct {
		name string
		pcm  []byte
		want int
	}{
		{name: "silence", pcm: constantPCM(160, 0), want: 0},
		{name: "quarter scale saturates at default gain", pcm: constantPCM(160, 8192), want: 100},
		{name: "speech level", pcm: constantPCM(160, 4096), want: 50},
		{name: "full scale clamps", pcm: constantPCM(160, -32768), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Level(tt.pcm); got != tt.want {
				t.Errorf("Level = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLevelSampler_Gain(t *testing.T) {
	t.Parallel()
	s := audio.NewLevelSampler(audio.WithLevelGain(1))
	if got := s.Level(constantPCM(160, 16384)); got != 50 {
		t.Errorf("Level = %d, want 50", got)
	}
	frame := audio.AudioFrame{Data: constantPCM(160, 16384), SampleRate: 16000, Channels: 1, Timestamp: 40 * time.Millisecond}
	if got := s.Sample(frame); got.Timestamp != 40*time.Millisecond || got.Level != 50 {
		t.Errorf("Sample = %+v", got)
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()
	pcm := constantPCM(320, 1)
	wav := audio.EncodeWAV(pcm, 16000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("bad chunk ids")
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d", got)
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()
	f := audio.AudioFrame{Data: constantPCM(320, 0), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("frame duration = %v", got)
	}
	c := audio.Clip{PCM: constantPCM(48000, 0), SampleRate: 24000, Channels: 1}
	if got := c.Duration(); got != 2*time.Second {
		t.Errorf("clip duration = %v", got)
	}
	if got := (audio.Clip{}).Duration(); got != 0 {
		t.Errorf("zero clip duration = %v", got)
	}
}
