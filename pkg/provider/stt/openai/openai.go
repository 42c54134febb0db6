// Package openai provides an STT provider backed by the OpenAI Audio
// Transcriptions API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

const defaultLanguage = "es"

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language used when a request leaves it empty.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI STT Provider. An empty model selects "whisper-1".
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{language: defaultLanguage}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    oai.AudioModel(model),
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider. Keywords become the prompt, which the
// API uses as preceding context.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("openai stt: empty recording")
	}
	sr, ch := req.SampleRate, req.Channels
	if sr <= 0 {
		sr = 16000
	}
	if ch <= 0 {
		ch = 1
	}
	wav := audio.EncodeWAV(req.PCM, sr, ch)

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: p.model,
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt := keywordPrompt(req.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Duration: audio.Clip{PCM: req.PCM, SampleRate: sr, Channels: ch}.Duration(),
	}, nil
}

func keywordPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}
