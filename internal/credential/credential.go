// Package credential turns free-form transcripts into structured credential
// fields: usernames, e-mail addresses spelled out phonetically, braille dot
// numbers, navigation commands and short dialogue answers.
//
// Extraction is a pure, total function of the transcript and a field hint.
// Nothing here returns an error; text that matches no rule yields a
// [Field] of kind [KindUnrecognized] and the caller decides whether to
// re-prompt.
package credential

import (
	"fmt"
	"strings"
)

// Hint tells the interpreter which field the dialogue expects next.
type Hint int

const (
	HintCommand Hint = iota
	HintUsername
	HintEmail
	HintBraille
	HintPosition
	HintAnswer
)

// String returns the lowercase hint name.
func (h Hint) String() string {
	switch h {
	case HintCommand:
		return "command"
	case HintUsername:
		return "username"
	case HintEmail:
		return "email"
	case HintBraille:
		return "braille"
	case HintPosition:
		return "position"
	case HintAnswer:
		return "answer"
	default:
		return fmt.Sprintf("Hint(%d)", int(h))
	}
}

// Kind tags the variant held by a [Field].
type Kind int

const (
	KindUnrecognized Kind = iota
	KindUsername
	KindEmail
	KindBrailleDigits
	KindCommand
	KindPosition
	KindAnswer
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindUnrecognized:
		return "unrecognized"
	case KindUsername:
		return "username"
	case KindEmail:
		return "email"
	case KindBrailleDigits:
		return "braille_digits"
	case KindCommand:
		return "command"
	case KindPosition:
		return "position"
	case KindAnswer:
		return "answer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is a navigation command.
type Command string

const (
	CommandLogin    Command = "login"
	CommandRegister Command = "register"
	CommandVoice    Command = "voice"
	CommandFace     Command = "face"
	CommandCancel   Command = "cancel"
)

// Answer is a short reply inside the braille entry and edit dialogue.
type Answer string

const (
	AnswerEdit    Answer = "edit"
	AnswerConfirm Answer = "confirm"
	AnswerCancel  Answer = "cancel"
	AnswerDelete  Answer = "delete"
	AnswerDone    Answer = "done"
	AnswerNext    Answer = "next"
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
)

// Field is the tagged result of one extraction. Only the members matching
// Kind are meaningful.
type Field struct {
	Kind Kind

	// Value holds the username or e-mail address.
	Value string

	// Digits holds braille dot numbers, deduplicated and sorted ascending.
	Digits []int

	// NumberMode is set when the speaker announced a number ("número") so
	// the braille lookup uses the digit namespace.
	NumberMode bool

	Command  Command
	Answer   Answer
	Position int
}

// Recognized reports whether any rule matched.
func (f Field) Recognized() bool { return f.Kind != KindUnrecognized }

// String renders the field for logs.
func (f Field) String() string {
	switch f.Kind {
	case KindUsername, KindEmail:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Value)
	case KindBrailleDigits:
		return fmt.Sprintf("%s(%s)", f.Kind, DigitKey(f.Digits))
	case KindCommand:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Command)
	case KindAnswer:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Answer)
	case KindPosition:
		return fmt.Sprintf("%s(%d)", f.Kind, f.Position)
	default:
		return f.Kind.String()
	}
}

// DigitKey joins sorted digits into the braille table key, e.g. [2 4 5] → "245".
func DigitKey(digits []int) string {
	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

// Option configures an [Interpreter].
type Option func(*Interpreter)

// WithFuzzyThreshold sets the Jaro-Winkler score at which an unknown token is
// accepted as a misheard vocabulary word. Default 0.9.
func WithFuzzyThreshold(t float64) Option {
	return func(i *Interpreter) { i.vocab.threshold = t }
}

// WithoutFuzzy disables fuzzy matching of misheard letter names and command
// words; only exact table entries decode.
func WithoutFuzzy() Option {
	return func(i *Interpreter) { i.fuzzy = false }
}

// Interpreter extracts credential fields. It is read-only after construction
// and safe for concurrent use.
type Interpreter struct {
	fuzzy bool
	vocab *vocabulary
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{fuzzy: true, vocab: newVocabulary()}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Extract interprets transcript according to hint. It never fails; an
// unmatched transcript yields a Field of kind [KindUnrecognized].
func (i *Interpreter) Extract(transcript string, hint Hint) Field {
	text := normalize(transcript)
	if text == "" {
		return Field{}
	}
	switch hint {
	case HintUsername:
		return extractUsername(text)
	case HintEmail:
		return i.extractEmail(text)
	case HintBraille:
		return i.extractBraille(text)
	case HintPosition:
		return extractPosition(text)
	case HintAnswer:
		return i.extractAnswer(text)
	default:
		return i.extractCommand(text)
	}
}
