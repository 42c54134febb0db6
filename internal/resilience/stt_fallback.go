package resilience

import (
	"context"

	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] by failing over across several
// transcription backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another transcription backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Transcribe returns the first successful transcript. An empty transcript is
// a success; silence is not a backend fault.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// Healthy reports whether any backend's breaker is not open.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// States returns per-backend breaker states.
func (f *STTFallback) States() map[string]State { return f.group.States() }
