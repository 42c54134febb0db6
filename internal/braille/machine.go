package braille

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/vozbraille/internal/credential"
)

// Step is the machine's position in the entry and edit dialogue.
type Step int

const (
	// StepEntering accepts dot patterns, confirm, delete and complete.
	StepEntering Step = iota
	// StepAskEdit offers edit, confirm or cancel after completion.
	StepAskEdit
	// StepAskPosition waits for a 1-based position to edit.
	StepAskPosition
	// StepEditingPosition edits the cell at the selected position.
	StepEditingPosition
	// StepAskFromScratch offers to discard the whole password.
	StepAskFromScratch
	// StepConfirmed is terminal; the password has been handed out.
	StepConfirmed
)

// String returns the lowercase step name.
func (s Step) String() string {
	switch s {
	case StepEntering:
		return "entering"
	case StepAskEdit:
		return "ask_edit"
	case StepAskPosition:
		return "ask_position"
	case StepEditingPosition:
		return "editing_position"
	case StepAskFromScratch:
		return "ask_from_scratch"
	case StepConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Signal reports the outcome of an operation. Signals such as
// SignalEmptyConfirm and SignalInvalidPosition are re-prompts, not errors.
type Signal int

const (
	SignalCharacterPending Signal = iota + 1
	SignalNoCharacter
	SignalCharacterAdded
	SignalEmptyConfirm
	SignalDeleted
	SignalNothingToDelete
	SignalEmptyPassword
	SignalReview
	SignalAskPosition
	SignalInvalidPosition
	SignalEditingPosition
	SignalPositionUpdated
	SignalEditCancelled
	SignalBackToEntering
	SignalAskFromScratch
	SignalReset
	SignalConfirmed
	SignalUnexpectedInput
)

var signalNames = map[Signal]string{
	SignalCharacterPending: "character_pending",
	SignalNoCharacter:      "no_character",
	SignalCharacterAdded:   "character_added",
	SignalEmptyConfirm:     "empty_confirm",
	SignalDeleted:          "deleted",
	SignalNothingToDelete:  "nothing_to_delete",
	SignalEmptyPassword:    "empty_password",
	SignalReview:           "review",
	SignalAskPosition:      "ask_position",
	SignalInvalidPosition:  "invalid_position",
	SignalEditingPosition:  "editing_position",
	SignalPositionUpdated:  "position_updated",
	SignalEditCancelled:    "edit_cancelled",
	SignalBackToEntering:   "back_to_entering",
	SignalAskFromScratch:   "ask_from_scratch",
	SignalReset:            "reset",
	SignalConfirmed:        "confirmed",
	SignalUnexpectedInput:  "unexpected_input",
}

// String returns the snake_case signal name.
func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// Result is returned by every machine operation.
type Result struct {
	Signal Signal
	Step   Step

	// Char is the character involved (pending, added, deleted or edited).
	Char rune

	// Position is the 1-based position for edit signals.
	Position int

	// Length is the password length after the operation.
	Length int

	// Password is set on SignalConfirmed only.
	Password string
}

// pending is a looked-up character not yet committed.
type pending struct {
	char rune
	dots []int
}

// Snapshot is a copy of the machine state for observers.
type Snapshot struct {
	Step     Step
	Password string
	Dots     [][]int
	Pending  rune // 0 when nothing is pending
	Position int  // 1-based; 0 outside the edit sub-flow
}

// Machine accumulates a braille password. password and dots always have the
// same length; every mutation touches both.
//
// A Machine is not safe for concurrent use; the dialogue owns it.
type Machine struct {
	step     Step
	password []rune
	dots     [][]int
	pending  *pending

	// position is the 0-based index under edit; -1 outside EditingPosition.
	position int
}

// NewMachine returns a machine in StepEntering with an empty password.
func NewMachine() *Machine {
	return &Machine{position: -1}
}

// Step returns the current step.
func (m *Machine) Step() Step { return m.step }

// Len returns the number of committed characters.
func (m *Machine) Len() int { return len(m.password) }

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{Step: m.step, Password: string(m.password), Position: m.position + 1}
	s.Dots = make([][]int, len(m.dots))
	for i, d := range m.dots {
		s.Dots[i] = slices.Clone(d)
	}
	if m.pending != nil {
		s.Pending = m.pending.char
	}
	return s
}

// Hints returns the field hints the current step understands, in the order
// the dialogue should try them.
func (m *Machine) Hints() []credential.Hint {
	switch m.step {
	case StepEntering, StepEditingPosition:
		return []credential.Hint{credential.HintBraille}
	case StepAskPosition:
		return []credential.Hint{credential.HintPosition, credential.HintAnswer}
	default:
		return []credential.Hint{credential.HintAnswer}
	}
}

// SubmitDigits looks up the dot set and stores the character as pending,
// replacing any previous pending character. An unknown pattern clears the
// pending character.
func (m *Machine) SubmitDigits(dots []int, numberMode bool) Result {
	if m.step != StepEntering && m.step != StepEditingPosition {
		return m.result(SignalUnexpectedInput)
	}
	key := Key(dots, numberMode)
	ch, ok := Lookup(key)
	if !ok {
		m.pending = nil
		return m.result(SignalNoCharacter)
	}
	m.pending = &pending{char: ch, dots: keyDots(strings.TrimPrefix(key, NumberPrefix))}
	r := m.result(SignalCharacterPending)
	r.Char = ch
	return r
}

// ConfirmCharacter commits the pending character. With nothing pending it
// returns SignalEmptyConfirm and changes nothing.
func (m *Machine) ConfirmCharacter() Result {
	if m.step != StepEntering {
		return m.result(SignalUnexpectedInput)
	}
	if m.pending == nil {
		return m.result(SignalEmptyConfirm)
	}
	ch := m.commitPending()
	r := m.result(SignalCharacterAdded)
	r.Char = ch
	return r
}

// DeleteLast removes the last character together with its dot set.
func (m *Machine) DeleteLast() Result {
	if m.step != StepEntering {
		return m.result(SignalUnexpectedInput)
	}
	n := len(m.password)
	if n == 0 {
		return m.result(SignalNothingToDelete)
	}
	ch := m.password[n-1]
	m.password = m.password[:n-1]
	m.dots = m.dots[:n-1]
	m.pending = nil
	m.checkInvariant()
	r := m.result(SignalDeleted)
	r.Char = ch
	return r
}

// Complete folds any pending character into the password and moves to the
// review step. An empty password stays in StepEntering.
func (m *Machine) Complete() Result {
	if m.step != StepEntering {
		return m.result(SignalUnexpectedInput)
	}
	if m.pending != nil {
		m.commitPending()
	}
	if len(m.password) == 0 {
		return m.result(SignalEmptyPassword)
	}
	m.step = StepAskEdit
	return m.result(SignalReview)
}

// Answer handles edit, confirm and cancel in StepAskEdit, done, confirm and
// cancel in StepAskPosition, and yes or no in StepAskFromScratch.
func (m *Machine) Answer(a credential.Answer) Result {
	switch m.step {
	case StepAskEdit:
		switch a {
		case credential.AnswerEdit:
			m.step = StepAskPosition
			return m.result(SignalAskPosition)
		case credential.AnswerConfirm:
			return m.confirm()
		case credential.AnswerCancel:
			m.step = StepEntering
			return m.result(SignalBackToEntering)
		}

	case StepAskPosition:
		switch a {
		case credential.AnswerDone, credential.AnswerConfirm:
			m.step = StepAskEdit
			return m.result(SignalReview)
		case credential.AnswerCancel, credential.AnswerNo:
			m.step = StepAskFromScratch
			return m.result(SignalAskFromScratch)
		}

	case StepAskFromScratch:
		switch a {
		case credential.AnswerYes, credential.AnswerConfirm:
			m.password, m.dots, m.pending = nil, nil, nil
			m.step = StepEntering
			m.checkInvariant()
			return m.result(SignalReset)
		case credential.AnswerNo, credential.AnswerCancel:
			m.step = StepAskPosition
			return m.result(SignalAskPosition)
		}

	case StepEditingPosition:
		if a == credential.AnswerCancel {
			return m.CancelEdit()
		}
	}
	return m.result(SignalUnexpectedInput)
}

// SelectPosition picks the 1-based position to edit. Out-of-range positions
// are rejected with SignalInvalidPosition and the step is unchanged.
func (m *Machine) SelectPosition(pos int) Result {
	if m.step != StepAskPosition {
		return m.result(SignalUnexpectedInput)
	}
	if pos < 1 || pos > len(m.password) {
		r := m.result(SignalInvalidPosition)
		r.Position = pos
		return r
	}
	m.position = pos - 1
	m.pending = &pending{char: m.password[m.position], dots: slices.Clone(m.dots[m.position])}
	m.step = StepEditingPosition
	r := m.result(SignalEditingPosition)
	r.Char = m.pending.char
	return r
}

// ConfirmEditedPosition overwrites the edited cell with the pending
// character and returns to StepAskPosition.
func (m *Machine) ConfirmEditedPosition() Result {
	if m.step != StepEditingPosition {
		return m.result(SignalUnexpectedInput)
	}
	if m.pending == nil {
		return m.result(SignalEmptyConfirm)
	}
	ch := m.pending.char
	m.password[m.position] = ch
	m.dots[m.position] = m.pending.dots
	m.checkInvariant()

	r := m.leaveEdit(SignalPositionUpdated)
	r.Char = ch
	return r
}

// CancelEdit discards the in-progress edit of the selected position only.
func (m *Machine) CancelEdit() Result {
	if m.step != StepEditingPosition {
		return m.result(SignalUnexpectedInput)
	}
	return m.leaveEdit(SignalEditCancelled)
}

// Handle dispatches an interpreted utterance to the operation the current
// step expects.
func (m *Machine) Handle(f credential.Field) Result {
	switch f.Kind {
	case credential.KindBrailleDigits:
		return m.SubmitDigits(f.Digits, f.NumberMode)
	case credential.KindPosition:
		return m.SelectPosition(f.Position)
	case credential.KindAnswer:
		return m.handleAnswer(f.Answer)
	}
	return m.result(SignalUnexpectedInput)
}

func (m *Machine) handleAnswer(a credential.Answer) Result {
	switch m.step {
	case StepEntering:
		switch a {
		case credential.AnswerNext, credential.AnswerConfirm, credential.AnswerYes:
			return m.ConfirmCharacter()
		case credential.AnswerDelete:
			return m.DeleteLast()
		case credential.AnswerDone:
			return m.Complete()
		}
		return m.result(SignalUnexpectedInput)
	case StepEditingPosition:
		switch a {
		case credential.AnswerNext, credential.AnswerConfirm, credential.AnswerYes, credential.AnswerDone:
			return m.ConfirmEditedPosition()
		case credential.AnswerCancel:
			return m.CancelEdit()
		}
		return m.result(SignalUnexpectedInput)
	}
	return m.Answer(a)
}

// Reset returns the machine to an empty StepEntering.
func (m *Machine) Reset() {
	*m = Machine{position: -1}
}

func (m *Machine) confirm() Result {
	r := m.result(SignalConfirmed)
	r.Password = string(m.password)
	r.Step = StepConfirmed
	r.Length = len(m.password)
	m.password, m.dots, m.pending = nil, nil, nil
	m.step = StepConfirmed
	m.checkInvariant()
	return r
}

func (m *Machine) leaveEdit(sig Signal) Result {
	pos := m.position + 1
	m.pending = nil
	m.position = -1
	m.step = StepAskPosition
	r := m.result(sig)
	r.Position = pos
	return r
}

func (m *Machine) commitPending() rune {
	p := m.pending
	m.pending = nil
	m.password = append(m.password, p.char)
	m.dots = append(m.dots, p.dots)
	m.checkInvariant()
	return p.char
}

func (m *Machine) result(s Signal) Result {
	return Result{Signal: s, Step: m.step, Length: len(m.password), Position: m.position + 1}
}

func (m *Machine) checkInvariant() {
	if len(m.password) != len(m.dots) {
		panic(fmt.Sprintf("braille: password has %d characters but %d dot sets", len(m.password), len(m.dots)))
	}
}
