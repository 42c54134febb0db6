// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

// whisper.cpp models are trained on 16 kHz mono audio.
const nativeSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared; each Transcribe call gets its own context.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// sem bounds concurrent inference; each context allocates its own
	// compute buffers.
	sem chan struct{}

	closeOnce sync.Once
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "es", "en"). Defaults to "es".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeConcurrency limits the number of inferences running at once.
// Defaults to 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		sem:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Calling Close more than once is safe.
func (p *NativeProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.model != nil {
			err = p.model.Close()
		}
	})
	return err
}

// Transcribe implements stt.Provider. Audio in other formats is downmixed
// and resampled to 16 kHz mono first.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("whisper: empty recording")
	}
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("whisper: wait for model: %w", ctx.Err())
	}

	sr, ch := formatOf(req)
	pcm := req.PCM
	if sr != nativeSampleRate {
		pcm = audio.Resample(pcm, ch, sr, nativeSampleRate)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	text, err := p.infer(audio.Float32Mono(pcm, ch), lang)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:     text,
		Duration: audio.Clip{PCM: req.PCM, SampleRate: sr, Channels: ch}.Duration(),
	}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32, language string) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
