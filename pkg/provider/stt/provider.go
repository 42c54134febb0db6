// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., a local whisper.cpp
// server, Deepgram, or the OpenAI Audio API) and turns one finished
// recording into text. The voice dialogue always has a complete utterance
// in hand before it asks for a transcript, so the contract is a single
// request/response call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed marks a recording that could not be turned into
// text. Callers re-prompt the user instead of aborting the dialogue.
var ErrTranscriptionFailed = errors.New("stt: transcription failed")

// Request is one finished recording plus recognition hints.
type Request struct {
	// PCM is 16-bit signed little-endian audio.
	PCM []byte

	// SampleRate is the audio sample rate in Hz (16000 for the dialogue).
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "es").
	// An empty string selects the provider default.
	Language string

	// Keywords are vocabulary hints such as spelled letter names and
	// "arroba". Providers without keyword support may fold them into a
	// prompt or ignore them.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the transcript of req. An empty Text with a nil
	// error means the provider heard nothing intelligible.
	//
	// Returns an error if the backend cannot be reached, rejects the audio,
	// or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
