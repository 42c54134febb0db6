// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface by streaming
// a finished recording and collecting the final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "es"
	defaultSampleRate = 16000

	// chunkBytes is 100 ms of 16 kHz mono PCM, the cadence Deepgram expects
	// from live clients.
	chunkBytes = 3200
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "es", "en").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the audio sample rate used when a request leaves it zero.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the live endpoint URL. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It sends the recording in 100 ms
// chunks followed by CloseStream, then joins every final result until the
// server closes the socket.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("deepgram: empty recording")
	}
	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.writeAudio(ctx, conn, req.PCM)
	}()

	var (
		parts []string
		out   stt.Transcript
		confs float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		t, final, ok := parseDeepgramResponse(msg)
		if !ok || !final || t.Text == "" {
			continue
		}
		parts = append(parts, t.Text)
		out.Words = append(out.Words, t.Words...)
		confs += t.Confidence
	}
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, err
	}

	out.Text = strings.Join(parts, " ")
	if len(parts) > 0 {
		out.Confidence = confs / float64(len(parts))
	}
	sr, ch := p.format(req)
	out.Duration = audio.Clip{PCM: req.PCM, SampleRate: sr, Channels: ch}.Duration()
	return out, nil
}

// writeAudio sends pcm as binary messages and asks the server to flush.
func (p *Provider) writeAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

func (p *Provider) format(req stt.Request) (sampleRate, channels int) {
	sampleRate, channels = req.SampleRate, req.Channels
	if sampleRate <= 0 {
		sampleRate = p.sampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return sampleRate, channels
}

// buildURL constructs the Deepgram live endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	sr, ch := p.format(req)

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))

	for _, kw := range req.Keywords {
		// nova-3 takes keyterm prompts; older models take word:boost.
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a
// Transcript. ok is false if the message should be ignored.
func parseDeepgramResponse(data []byte) (t stt.Transcript, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false, false
	}
	if resp.Type != "Results" {
		return stt.Transcript{}, false, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
	}, resp.IsFinal, true
}
