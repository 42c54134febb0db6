package browser

import (
	"fmt"

	"layeh.com/gopus"
)

// maxOpusFrameMs is the longest frame an Opus packet can carry.
const maxOpusFrameMs = 120

// opusDecoder wraps a gopus decoder for the single browser stream. Decoder
// state carries across packets, so one decoder serves the whole connection.
type opusDecoder struct {
	dec      *gopus.Decoder
	maxFrame int // samples per channel
}

func newOpusDecoder(sampleRate, channels int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("browser: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, maxFrame: sampleRate * maxOpusFrameMs / 1000}, nil
}

// decode decodes one Opus packet into little-endian PCM16.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.maxFrame, false)
	if err != nil {
		return nil, fmt.Errorf("browser: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// opusEncoder wraps a gopus encoder tuned for speech prompts.
type opusEncoder struct {
	enc       *gopus.Encoder
	frameSize int // samples per channel
}

func newOpusEncoder(sampleRate, channels, frameSize int) (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("browser: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc, frameSize: frameSize}, nil
}

// encode encodes exactly one frame of PCM16 into an Opus packet.
func (e *opusEncoder) encode(pcm []byte) ([]byte, error) {
	packet, err := e.enc.Encode(bytesToInt16s(pcm), e.frameSize, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("browser: opus encode: %w", err)
	}
	return packet, nil
}

func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
