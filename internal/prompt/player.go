package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

// Player plays one item to completion. It returns when playback finishes,
// fails, or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, item Item) error
}

// PlayerFunc adapts a function to [Player].
type PlayerFunc func(ctx context.Context, item Item) error

// Play implements [Player].
func (f PlayerFunc) Play(ctx context.Context, item Item) error { return f(ctx, item) }

// errSpeakOnly is returned by LibraryPlayer for items that must be
// synthesized.
var errSpeakOnly = errors.New("prompt: item has no clip")

// LibraryPlayer plays prebuilt clips from a [ClipLibrary] to a sink.
type LibraryPlayer struct {
	lib  *ClipLibrary
	sink audio.Sink
}

var _ Player = (*LibraryPlayer)(nil)

// NewLibraryPlayer returns a player for clips in lib.
func NewLibraryPlayer(lib *ClipLibrary, sink audio.Sink) *LibraryPlayer {
	return &LibraryPlayer{lib: lib, sink: sink}
}

// Play implements [Player].
func (p *LibraryPlayer) Play(ctx context.Context, item Item) error {
	if item.Speak {
		return errSpeakOnly
	}
	clip, err := p.lib.Load(item.ID)
	if err != nil {
		return err
	}
	return p.sink.Play(ctx, clip)
}

// SpeechPlayer synthesizes the item's text and plays it to a sink.
type SpeechPlayer struct {
	tts   tts.Provider
	voice tts.Voice
	sink  audio.Sink
}

var _ Player = (*SpeechPlayer)(nil)

// NewSpeechPlayer returns a player that speaks item text with provider.
func NewSpeechPlayer(provider tts.Provider, voice tts.Voice, sink audio.Sink) *SpeechPlayer {
	return &SpeechPlayer{tts: provider, voice: voice, sink: sink}
}

// Play implements [Player].
func (p *SpeechPlayer) Play(ctx context.Context, item Item) error {
	text := item.FallbackText()
	if text == "" {
		return fmt.Errorf("prompt: no text for %s", item.ID)
	}
	clip, err := p.tts.Synthesize(ctx, text, p.voice)
	if err != nil {
		return fmt.Errorf("prompt: synthesize %s: %w", item.ID, err)
	}
	return p.sink.Play(ctx, clip)
}
