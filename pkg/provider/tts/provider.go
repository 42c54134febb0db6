// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns a short prompt text into a complete PCM clip. Prompts
// in a voice dialogue are a sentence or two, so synthesis is request/response
// rather than streamed.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// Voice selects the speaking voice. Zero fields mean provider defaults.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g. "alloy").
	ID string

	// Language is the BCP-47 language tag of the text (e.g. "es").
	Language string

	// Speed adjusts the speaking rate (0.25–4.0, 0 = default).
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as 16-bit little-endian PCM. The returned clip
	// carries its own sample rate and channel count.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Clip, error)
}
