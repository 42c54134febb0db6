package dialogue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/vozbraille/internal/credential"
	"github.com/MrWong99/vozbraille/internal/observe"
	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

// Run drives the dialogue to completion and returns the collected
// credentials.
//
// It returns [ErrCancelled] when the user cancels, [ErrTooManyRetries] when a
// step exhausts its retries, an error wrapping [audio.ErrInputUnavailable]
// when the audio source fails, or ctx's error. In every case except ctx
// cancellation a closing prompt is spoken before Run returns.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "dialogue.Run")
	defer span.End()

	out, err := c.run(ctx)
	c.finish(ctx, out, err)
	return out, err
}

func (c *Controller) run(ctx context.Context) (Outcome, error) {
	var out Outcome

	c.step = StepWelcome
	c.say(prompt.NewItem(prompt.Welcome))

	c.step = StepAction
	f, err := c.ask(ctx, prompt.NewItem(prompt.ChooseAction), func(f credential.Field) bool {
		return f.Kind == credential.KindCommand &&
			(f.Command == credential.CommandLogin || f.Command == credential.CommandRegister)
	}, credential.HintCommand)
	if err != nil {
		return out, err
	}
	out.Action = f.Command

	c.step = StepUsername
	if f, err = c.ask(ctx, prompt.NewItem(prompt.AskUsername), kindIs(credential.KindUsername), credential.HintUsername); err != nil {
		return out, err
	}
	out.Username = f.Value

	if out.Action == credential.CommandRegister {
		c.step = StepEmail
		if f, err = c.ask(ctx, prompt.NewItem(prompt.AskEmail), kindIs(credential.KindEmail), credential.HintEmail); err != nil {
			return out, err
		}
		out.Email = f.Value
	}

	c.step = StepPassword
	if out.Password, err = c.enterPassword(ctx); err != nil {
		return out, err
	}

	c.step = StepMethod
	f, err = c.ask(ctx, prompt.NewItem(prompt.ChooseMethod), func(f credential.Field) bool {
		return f.Kind == credential.KindCommand &&
			(f.Command == credential.CommandVoice || f.Command == credential.CommandFace)
	}, credential.HintCommand)
	if err != nil {
		return out, err
	}
	out.Method = f.Command

	c.step = StepDone
	return out, nil
}

// finish speaks the closing prompt, waits for it and publishes the outcome.
// On failure pending prompts are interrupted first.
func (c *Controller) finish(ctx context.Context, out Outcome, err error) {
	log := observe.Logger(ctx)
	result := "ok"
	closing := prompt.Goodbye
	switch {
	case err == nil:
		closing = prompt.LoginOK
		if out.Action == credential.CommandRegister {
			closing = prompt.RegisterOK
		}
		log.Info("dialogue finished", "action", out.Action, "username", out.Username, "method", out.Method)
	case errors.Is(err, ErrCancelled):
		result = "cancelled"
		log.Info("dialogue cancelled", "step", c.step)
	case errors.Is(err, ErrTooManyRetries):
		result = "too_many_retries"
		log.Warn("dialogue gave up", "step", c.step, "err", err)
	case errors.Is(err, audio.ErrInputUnavailable):
		result = "input_unavailable"
		closing = prompt.InputUnavailable
		log.Error("audio input lost", "step", c.step, "err", err)
	default:
		result = "aborted"
		closing = ""
		log.Info("dialogue aborted", "step", c.step, "err", err)
	}

	// A failed dialogue cuts off whatever is still playing or queued so the
	// closing prompt is heard next, or nothing when the session is gone.
	if err != nil {
		c.prompts.InterruptAll()
	}
	if closing != "" && ctx.Err() == nil {
		c.say(prompt.NewItem(closing))
		if werr := c.prompts.Wait(ctx); werr != nil && !errors.Is(werr, prompt.ErrQueueClosed) {
			log.Debug("closing prompt not awaited", "err", werr)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordDialogue(context.WithoutCancel(ctx), actionName(out.Action), result)
	}
	ev := Event{Topic: TopicOutcome, At: time.Now(), Step: c.step, Name: result}
	if err == nil {
		o := out
		ev.Outcome = &o
	} else {
		ev.Error = err.Error()
	}
	c.publish(ev)
}

func actionName(a credential.Command) string {
	if a == "" {
		return "none"
	}
	return string(a)
}

func kindIs(k credential.Kind) func(credential.Field) bool {
	return func(f credential.Field) bool { return f.Kind == k }
}

// ask speaks item and listens until an utterance satisfies accept. Unusable
// answers are re-prompted; after maxRetries of them ask gives up.
func (c *Controller) ask(ctx context.Context, item prompt.Item, accept func(credential.Field) bool, hints ...credential.Hint) (credential.Field, error) {
	c.say(item)
	for attempt := 1; ; attempt++ {
		f, err := c.turn(ctx, true, hints...)
		switch {
		case errors.Is(err, stt.ErrTranscriptionFailed):
			c.say(prompt.NewItem(prompt.TranscriptionFailed))
		case err != nil:
			return credential.Field{}, err
		case f.Recognized() && accept(f):
			return f, nil
		default:
			c.say(prompt.NewItem(prompt.NotUnderstood))
		}
		if attempt >= c.maxRetries {
			return credential.Field{}, fmt.Errorf("%w: step %s after %d attempts", ErrTooManyRetries, c.step, attempt)
		}
		c.say(item.Again())
	}
}

// turn waits for the prompts to finish, records one utterance and
// interprets it. The hints are tried in order; the first recognized field
// wins. A cancel request returns [ErrCancelled] when cancelable is set.
func (c *Controller) turn(ctx context.Context, cancelable bool, hints ...credential.Hint) (credential.Field, error) {
	if err := c.prompts.Wait(ctx); err != nil {
		return credential.Field{}, fmt.Errorf("dialogue: wait for prompts: %w", err)
	}

	rec, err := c.rec.Listen(ctx, c.src)
	if err != nil {
		return credential.Field{}, err
	}
	if c.metrics != nil {
		c.metrics.RecordRecording(ctx, string(rec.Reason), rec.Duration())
	}
	if rec.Empty() {
		observe.Logger(ctx).Debug("nothing heard", "step", c.step, "reason", rec.Reason)
		c.publishField("", credential.Field{})
		return credential.Field{}, nil
	}

	text, err := c.transcribe(ctx, rec.PCM, rec.SampleRate, rec.Channels)
	if err != nil {
		return credential.Field{}, err
	}

	if cancelable && credential.IsCancel(text) {
		return credential.Field{}, ErrCancelled
	}

	var f credential.Field
	for _, h := range hints {
		f = c.interp.Extract(text, h)
		if c.metrics != nil {
			c.metrics.RecordExtraction(ctx, h.String(), f.Kind.String())
		}
		if f.Recognized() {
			break
		}
	}
	observe.Logger(ctx).Debug("utterance interpreted", "step", c.step, "field", f.String())
	c.publishField(text, f)
	return f, nil
}

func (c *Controller) transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error) {
	ctx, span := observe.StartSpan(ctx, "dialogue.transcribe")
	defer span.End()

	start := time.Now()
	tr, err := c.stt.Transcribe(ctx, stt.Request{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Language:   c.language,
		Keywords:   slices.Clone(c.keywords),
	})
	if c.metrics != nil {
		c.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		observe.Logger(ctx).Warn("transcription failed", "step", c.step, "err", err)
		return "", fmt.Errorf("dialogue: %w: %w", stt.ErrTranscriptionFailed, err)
	}
	return tr.Text, nil
}

// say enqueues item. Suppressed repeats are expected and not logged here.
func (c *Controller) say(item prompt.Item) {
	if _, err := c.prompts.Enqueue(item); err != nil {
		observe.Logger(context.Background()).Warn("prompt not queued", "prompt_id", item.ID, "err", err)
	}
}

func (c *Controller) publishField(text string, f credential.Field) {
	c.publish(Event{
		Topic: TopicField,
		At:    time.Now(),
		Step:  c.step,
		Name:  f.Kind.String(),
		Text:  text,
		Value: fieldValue(f),
	})
}

func fieldValue(f credential.Field) string {
	switch f.Kind {
	case credential.KindUsername, credential.KindEmail:
		return f.Value
	case credential.KindBrailleDigits:
		return credential.DigitKey(f.Digits)
	case credential.KindCommand:
		return string(f.Command)
	case credential.KindAnswer:
		return string(f.Answer)
	case credential.KindPosition:
		return fmt.Sprint(f.Position)
	}
	return ""
}

func (c *Controller) publish(ev Event) {
	if c.bus != nil {
		c.bus.Publish(ev.Topic, ev)
	}
}
