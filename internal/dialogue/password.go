package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/MrWong99/vozbraille/internal/braille"
	"github.com/MrWong99/vozbraille/internal/credential"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

// enterPassword runs the braille machine until the user confirms a
// password. Consecutive unusable utterances count against the retry limit;
// any accepted operation resets the count. Cancelling the dialogue is only
// possible while typing characters; in the edit steps "cancelar" is an
// answer to the machine.
func (c *Controller) enterPassword(ctx context.Context) (string, error) {
	m := braille.NewMachine()
	c.say(prompt.NewItem(prompt.AskBraille))

	misses := 0
	for {
		f, err := c.turn(ctx, m.Step() == braille.StepEntering, m.Hints()...)
		switch {
		case errors.Is(err, stt.ErrTranscriptionFailed):
			c.say(prompt.NewItem(prompt.TranscriptionFailed))
			f = credential.Field{}
		case err != nil:
			return "", err
		}

		var r braille.Result
		if f.Recognized() {
			r = m.Handle(f)
			c.recordBraille(ctx, m, r)
		}
		if !f.Recognized() || r.Signal == braille.SignalUnexpectedInput {
			misses++
			if misses >= c.maxRetries {
				return "", fmt.Errorf("%w: step %s after %d attempts", ErrTooManyRetries, c.step, misses)
			}
			if err == nil {
				c.say(prompt.NewItem(prompt.NotUnderstood))
			}
			c.say(stepPrompt(m.Step()).Again())
			continue
		}
		misses = 0

		for _, item := range signalPrompts(r) {
			c.say(item)
		}
		if r.Signal == braille.SignalConfirmed {
			return r.Password, nil
		}
	}
}

func (c *Controller) recordBraille(ctx context.Context, m *braille.Machine, r braille.Result) {
	if c.metrics != nil {
		c.metrics.RecordBrailleOperation(ctx, r.Signal.String())
	}
	c.publish(Event{
		Topic:   TopicBraille,
		At:      time.Now(),
		Step:    c.step,
		Name:    r.Signal.String(),
		Braille: brailleView(m.Snapshot()),
	})
}

// stepPrompt is the question that re-opens a machine step.
func stepPrompt(s braille.Step) prompt.Item {
	switch s {
	case braille.StepAskEdit:
		return prompt.NewItem(prompt.AskEdit)
	case braille.StepAskPosition:
		return prompt.NewItem(prompt.AskPosition)
	case braille.StepAskFromScratch:
		return prompt.NewItem(prompt.AskFromScratch)
	case braille.StepEditingPosition:
		return prompt.Spoken(prompt.BrailleChar, "Di los nuevos puntos, o cancelar para dejarlo como estaba.")
	default:
		return prompt.NewItem(prompt.AskBraille)
	}
}

// signalPrompts is what the user hears after an accepted operation.
func signalPrompts(r braille.Result) []prompt.Item {
	switch r.Signal {
	case braille.SignalCharacterPending:
		return []prompt.Item{prompt.Spoken(prompt.BrailleChar,
			"Has marcado %s. Di siguiente para confirmarlo.", describeChar(r.Char))}
	case braille.SignalNoCharacter:
		return []prompt.Item{prompt.NewItem(prompt.BrailleNoChar)}
	case braille.SignalCharacterAdded:
		return []prompt.Item{prompt.Spoken(prompt.BrailleChar,
			"Añadido %s. La contraseña tiene %d caracteres.", describeChar(r.Char), r.Length)}
	case braille.SignalEmptyConfirm:
		return []prompt.Item{prompt.NewItem(prompt.BrailleEmptyConfirm)}
	case braille.SignalDeleted:
		return []prompt.Item{prompt.Spoken(prompt.BrailleChar,
			"Borrado %s. Quedan %d caracteres.", describeChar(r.Char), r.Length)}
	case braille.SignalNothingToDelete:
		return []prompt.Item{prompt.Spoken(prompt.BrailleEmptyConfirm, "No hay nada que borrar.")}
	case braille.SignalEmptyPassword:
		return []prompt.Item{prompt.Spoken(prompt.BrailleEmptyConfirm,
			"La contraseña está vacía. Di los puntos del primer carácter.")}
	case braille.SignalReview:
		return []prompt.Item{
			prompt.Spoken(prompt.AskEdit, "Tu contraseña tiene %d caracteres.", r.Length),
			prompt.NewItem(prompt.AskEdit),
		}
	case braille.SignalAskPosition, braille.SignalEditCancelled:
		return []prompt.Item{prompt.NewItem(prompt.AskPosition)}
	case braille.SignalInvalidPosition:
		return []prompt.Item{prompt.NewItem(prompt.InvalidPosition)}
	case braille.SignalEditingPosition:
		return []prompt.Item{prompt.Spoken(prompt.BrailleChar,
			"La posición %d es %s. Di los nuevos puntos y luego siguiente.", r.Position, describeChar(r.Char))}
	case braille.SignalPositionUpdated:
		return []prompt.Item{
			prompt.Spoken(prompt.BrailleChar, "Posición %d cambiada a %s.", r.Position, describeChar(r.Char)),
			prompt.NewItem(prompt.AskPosition),
		}
	case braille.SignalBackToEntering, braille.SignalReset:
		return []prompt.Item{prompt.NewItem(prompt.AskBraille)}
	case braille.SignalAskFromScratch:
		return []prompt.Item{prompt.NewItem(prompt.AskFromScratch)}
	case braille.SignalConfirmed:
		return []prompt.Item{prompt.NewItem(prompt.PasswordConfirmed)}
	}
	return nil
}

func describeChar(r rune) string {
	if unicode.IsDigit(r) {
		return fmt.Sprintf("el número %c", r)
	}
	return fmt.Sprintf("la letra %c", r)
}
