package resilience

import (
	"context"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] by failing over across several speech
// synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another synthesis backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Synthesize returns the clip from the first backend that renders text.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// Healthy reports whether any backend's breaker is not open.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// States returns per-backend breaker states.
func (f *TTSFallback) States() map[string]State { return f.group.States() }
