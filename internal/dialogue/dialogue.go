// Package dialogue is the voice interaction controller: it runs one spoken
// login or registration dialogue from greeting to outcome.
//
// Each turn enqueues a prompt, waits for the prompt queue to drain, records
// one utterance, transcribes it and interprets the transcript with the hint
// of the current step. Unrecognized answers are re-prompted up to a retry
// limit. The braille password step hands every utterance to a
// [braille.Machine] and speaks its signals back.
//
// Progress is published on an EventBus (see [Topics]) so a transport can
// mirror the dialogue to the user's screen.
package dialogue

import (
	"context"
	"errors"

	evbus "github.com/asaskevich/EventBus"

	"github.com/MrWong99/vozbraille/internal/credential"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/internal/recorder"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

var (
	// ErrCancelled is returned when the user asks to cancel.
	ErrCancelled = errors.New("dialogue: cancelled by user")

	// ErrTooManyRetries is returned when one step failed to understand the
	// user more times than the retry limit allows.
	ErrTooManyRetries = errors.New("dialogue: too many retries")
)

// DefaultMaxRetries is the number of failed attempts allowed per step.
const DefaultMaxRetries = 3

// Step names a stage of the dialogue.
type Step string

const (
	StepWelcome  Step = "welcome"
	StepAction   Step = "choose_action"
	StepUsername Step = "username"
	StepEmail    Step = "email"
	StepPassword Step = "password"
	StepMethod   Step = "choose_method"
	StepDone     Step = "done"
)

// Outcome is the result of a completed dialogue. Persisting or verifying it
// is the caller's job.
type Outcome struct {
	// Action is CommandLogin or CommandRegister.
	Action   credential.Command `json:"action"`
	Username string             `json:"username"`
	// Email is empty for logins.
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	// Method is the chosen biometric method, CommandVoice or CommandFace.
	Method credential.Command `json:"method"`
}

// Recorder records one utterance from a source. [*recorder.Listener]
// implements it.
type Recorder interface {
	Listen(ctx context.Context, src audio.Source) (recorder.Recording, error)
}

var _ Recorder = (*recorder.Listener)(nil)

// Option configures a [Controller].
type Option func(*Controller)

// WithBus publishes dialogue events on bus.
func WithBus(bus evbus.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithMetrics records dialogue metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithMaxRetries sets the failed attempts allowed per step. Values below 1
// are ignored.
func WithMaxRetries(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithLanguage sets the transcription language. Default "es".
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.language = lang }
}

// WithKeywords replaces the transcription vocabulary hints. Default
// [stt.DefaultKeywords].
func WithKeywords(kw []stt.KeywordBoost) Option {
	return func(c *Controller) { c.keywords = kw }
}

// WithInterpreter replaces the default credential interpreter.
func WithInterpreter(i *credential.Interpreter) Option {
	return func(c *Controller) { c.interp = i }
}

// Controller runs the dialogue for one user. It is single-use: call Run
// once.
type Controller struct {
	src     audio.Source
	rec     Recorder
	stt     stt.Provider
	prompts *prompt.Queue

	interp     *credential.Interpreter
	bus        evbus.Bus
	metrics    *observe.Metrics
	maxRetries int
	language   string
	keywords   []stt.KeywordBoost

	step Step
}

// New creates a Controller that listens on src through rec, transcribes with
// transcriber and speaks through prompts. The controller does not close src
// or prompts.
func New(src audio.Source, rec Recorder, transcriber stt.Provider, prompts *prompt.Queue, opts ...Option) *Controller {
	c := &Controller{
		src:        src,
		rec:        rec,
		stt:        transcriber,
		prompts:    prompts,
		maxRetries: DefaultMaxRetries,
		language:   "es",
		keywords:   stt.DefaultKeywords,
		step:       StepWelcome,
	}
	for _, o := range opts {
		o(c)
	}
	if c.interp == nil {
		c.interp = credential.New()
	}
	return c
}
