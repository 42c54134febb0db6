package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vozbraille/pkg/provider/tts/mock"
)

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()

	voice := tts.Voice{ID: "alloy", Language: "es"}
	primaryClip := audio.Clip{PCM: []byte{1, 2}, SampleRate: 24000, Channels: 1}
	secondaryClip := audio.Clip{PCM: []byte{3, 4}, SampleRate: 16000, Channels: 1}

	t.Run("primary", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{Clip: primaryClip}
		secondary := &ttsmock.Provider{Clip: secondaryClip}
		fb := NewTTSFallback(primary, "openai", FallbackConfig{})
		fb.AddFallback("elevenlabs", secondary)

		clip, err := fb.Synthesize(context.Background(), "Bienvenido", voice)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if clip.SampleRate != 24000 {
			t.Errorf("SampleRate = %d, want 24000", clip.SampleRate)
		}
		calls := primary.Calls()
		if len(calls) != 1 || calls[0].Text != "Bienvenido" || calls[0].Voice != voice {
			t.Errorf("primary calls = %+v", calls)
		}
		if len(secondary.Calls()) != 0 {
			t.Errorf("secondary was called")
		}
	})

	t.Run("failover", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
		secondary := &ttsmock.Provider{Clip: secondaryClip}
		fb := NewTTSFallback(primary, "openai", FallbackConfig{})
		fb.AddFallback("elevenlabs", secondary)

		clip, err := fb.Synthesize(context.Background(), "Bienvenido", voice)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if clip.SampleRate != 16000 {
			t.Errorf("SampleRate = %d, want 16000 from the fallback", clip.SampleRate)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{SynthesizeErr: errors.New("a")}
		fb := NewTTSFallback(primary, "openai", FallbackConfig{})
		fb.AddFallback("elevenlabs", &ttsmock.Provider{SynthesizeErr: errors.New("b")})

		_, err := fb.Synthesize(context.Background(), "Bienvenido", voice)
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
		if !fb.Healthy() {
			t.Fatal("one failure should not open the default breaker")
		}
		if got := fb.States()["openai"]; got != StateClosed {
			t.Fatalf("openai state = %v, want closed", got)
		}
	})
}
