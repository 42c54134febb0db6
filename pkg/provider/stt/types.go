package stt

import "time"

// Transcript is the result of transcribing one recording.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of spelled letters ("hache", "uve doble") and
// symbol words ("arroba", "guion bajo").
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "arroba").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// DefaultKeywords is the dialogue vocabulary the interpreter depends on.
var DefaultKeywords = []KeywordBoost{
	{Keyword: "arroba", Boost: 2},
	{Keyword: "punto", Boost: 1.5},
	{Keyword: "guion bajo", Boost: 1.5},
	{Keyword: "hache", Boost: 1},
	{Keyword: "uve doble", Boost: 1},
	{Keyword: "braille", Boost: 1},
}
