// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}}
//	clip, _ := p.Synthesize(ctx, "hola", tts.Voice{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by every successful Synthesize call.
	Clip audio.Clip

	// SynthesizeErr, if non-nil, is returned instead of Clip.
	SynthesizeErr error

	calls []SynthesizeCall
}

// Synthesize records the call and returns Clip or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return audio.Clip{}, p.SynthesizeErr
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	return p.Clip, nil
}

// Calls returns a copy of every recorded Synthesize call.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
