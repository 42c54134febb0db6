// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Provider
// interface by collecting the streamed audio into one clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

const (
	defaultEndpoint   = "wss://api.elevenlabs.io"
	defaultModel      = "eleven_flash_v2_5"
	defaultSampleRate = 16000

	// readLimit bounds a single JSON message; base64 audio chunks exceed the
	// websocket default of 32 KiB.
	readLimit = 4 << 20
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate selects the PCM output format (16000, 22050, 24000 or 44100).
func WithSampleRate(hz int) Option {
	return func(p *Provider) {
		p.sampleRate = hz
	}
}

// WithVoice sets the voice used when the request does not name one.
func WithVoice(id string) Option {
	return func(p *Provider) {
		p.voiceID = id
	}
}

// WithEndpoint overrides the API endpoint. Intended for tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(url, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey     string
	model      string
	voiceID    string
	sampleRate int
	endpoint   string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		endpoint:   defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. It opens one WebSocket per request,
// sends the begin-of-input handshake, the text and the flush command, and
// reads audio until the server marks the stream final.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	id := voice.ID
	if id == "" {
		id = p.voiceID
	}
	if id == "" {
		return audio.Clip{}, errors.New("elevenlabs: voice ID must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(id), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	// ElevenLabs requires a single space as the first text value and text
	// chunks that end in a space.
	msgs := []textMessage{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: voice.Speed}, XiAPIKey: p.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				break
			}
			return audio.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return audio.Clip{}, fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return audio.Clip{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	return audio.Clip{PCM: pcm, SampleRate: p.sampleRate, Channels: 1}, nil
}

// streamURL constructs the WebSocket URL for a given voice.
func (p *Provider) streamURL(voiceID string) string {
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=pcm_%d",
		p.endpoint, voiceID, p.model, p.sampleRate)
}
