package dialogue

import (
	"context"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/MrWong99/vozbraille/internal/braille"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/internal/vad"
)

// Bus topics. Every topic carries a single [Event] argument, so subscribers
// have the signature func(dialogue.Event).
const (
	TopicVAD     = "vad"
	TopicField   = "field"
	TopicBraille = "braille"
	TopicPrompt  = "prompt"
	TopicOutcome = "outcome"
)

// Topics lists every topic the dialogue publishes on.
var Topics = []string{TopicVAD, TopicField, TopicBraille, TopicPrompt, TopicOutcome}

// Event is what the dialogue publishes. It is shaped for JSON so the browser
// transport can forward it unchanged.
type Event struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Step  Step      `json:"step,omitempty"`

	// Name is the event type, field kind, braille signal, prompt event kind
	// or outcome result, depending on Topic.
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`

	// Text is the transcript (field) or prompt text (prompt).
	Text   string `json:"text,omitempty"`
	Value  string `json:"value,omitempty"`
	Prompt string `json:"prompt,omitempty"`

	Braille *BrailleView `json:"braille,omitempty"`
	Outcome *Outcome     `json:"outcome,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// BrailleView is the part of the password machine shown to the user. The
// typed characters are not included; the dot cells are.
type BrailleView struct {
	Step     string  `json:"step"`
	Dots     [][]int `json:"dots"`
	Length   int     `json:"length"`
	Pending  bool    `json:"pending"`
	Position int     `json:"position,omitempty"`
}

func brailleView(s braille.Snapshot) *BrailleView {
	return &BrailleView{
		Step:     s.Step.String(),
		Dots:     s.Dots,
		Length:   len([]rune(s.Password)),
		Pending:  s.Pending != 0,
		Position: s.Position,
	}
}

// VADObserver returns a detector observer for [recorder.WithObserver] that
// publishes on [TopicVAD] and counts events. bus and m may be nil.
func VADObserver(bus evbus.Bus, m *observe.Metrics) func(vad.Event) {
	return func(ev vad.Event) {
		if m != nil {
			m.RecordVADEvent(context.Background(), ev.Type.String(), string(ev.Reason))
		}
		if bus != nil {
			bus.Publish(TopicVAD, Event{
				Topic:  TopicVAD,
				At:     ev.At,
				Name:   ev.Type.String(),
				Reason: string(ev.Reason),
			})
		}
	}
}

// PromptObserver returns a queue observer for [prompt.WithObserver] that
// publishes on [TopicPrompt] and counts playback outcomes. bus and m may be
// nil.
func PromptObserver(bus evbus.Bus, m *observe.Metrics) func(prompt.Event) {
	return func(ev prompt.Event) {
		ctx := context.Background()
		if m != nil {
			switch ev.Kind {
			case prompt.EventSuppressed:
				m.RecordSuppressed(ctx, string(ev.Item.ID))
			case prompt.EventStarted:
			default:
				m.RecordPrompt(ctx, string(ev.Item.ID), ev.Kind.String())
			}
		}
		if bus == nil {
			return
		}
		out := Event{
			Topic:  TopicPrompt,
			At:     ev.At,
			Name:   ev.Kind.String(),
			Prompt: string(ev.Item.ID),
			Text:   ev.Item.FallbackText(),
		}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
		bus.Publish(TopicPrompt, out)
	}
}
