// Package openai provides a TTS provider backed by the OpenAI Audio Speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

// The speech endpoint returns raw "pcm" as 24 kHz 16-bit mono.
const (
	pcmSampleRate = 24000
	defaultVoice  = oai.AudioSpeechNewParamsVoiceAlloy
)

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
	voice  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithVoice sets the voice used when the request does not name one.
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI TTS Provider. An empty model selects "tts-1".
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.SpeechModelTTS1)
	}

	cfg := &config{voice: string(defaultVoice)}
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
		client: oai.NewClient(reqOpts...),
		model:  oai.SpeechModel(model),
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Provider. The clip is 24 kHz mono PCM.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	if text == "" {
		return audio.Clip{}, errors.New("openai tts: text must not be empty")
	}
	v := voice.ID
	if v == "" {
		v = p.voice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(v),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Speed > 0 {
		params.Speed = oai.Float(voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.Clip{PCM: pcm, SampleRate: pcmSampleRate, Channels: 1}, nil
}
