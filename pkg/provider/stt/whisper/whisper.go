// Package whisper provides local whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server binary (which exposes a REST API
// at POST /inference). NativeProvider links whisper.cpp through its CGO
// bindings and runs inference in-process.
//
// whisper.cpp is a batch engine, which matches the dialogue: each finished
// recording is submitted as one inference request.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("es"))
//	tr, err := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

const (
	defaultLanguage   = "es"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "es", "en"). Defaults to "es".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The recording is uploaded as a WAV
// file; keywords are sent as the initial prompt, which biases whisper's
// decoder toward them.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("whisper: empty recording")
	}
	sr, ch := formatOf(req)
	wav := audio.EncodeWAV(req.PCM, sr, ch)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        p.languageFor(req),
		"model":           p.model,
		"prompt":          keywordPrompt(req.Keywords),
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Duration: audio.Clip{PCM: req.PCM, SampleRate: sr, Channels: ch}.Duration(),
	}, nil
}

func (p *Provider) languageFor(req stt.Request) string {
	if req.Language != "" {
		return req.Language
	}
	return p.language
}

// ---- helpers ----------------------------------------------------------------

// formatOf returns the request format with provider defaults for zero values.
func formatOf(req stt.Request) (sampleRate, channels int) {
	sampleRate, channels = req.SampleRate, req.Channels
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return sampleRate, channels
}

// keywordPrompt joins keywords into a whisper initial prompt.
func keywordPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}
