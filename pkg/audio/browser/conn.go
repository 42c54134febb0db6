// Package browser adapts a browser WebSocket connection to the audio
// [audio.Source] and [audio.Sink] contracts.
//
// The browser streams microphone audio as binary messages, one frame per
// message, in the negotiated codec: raw little-endian PCM16 ("pcm16") or one
// Opus packet per message ("opus"). Prompts travel the other way in the same
// codec, paced in real time so Play returns when the browser has had the
// chance to play the clip. Text messages from the server carry JSON events.
//
// Control messages the server sends:
//
//	{"type":"hello","codec":"opus","sample_rate":48000,"channels":1,"frame_ms":20}
//	{"type":"playback_start","duration_ms":1840}
//	{"type":"playback_stop"}
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Conn)(nil)
	_ audio.Sink   = (*Conn)(nil)
)

// Codec is the encoding of binary audio messages.
type Codec string

const (
	CodecPCM16 Codec = "pcm16"
	CodecOpus  Codec = "opus"
)

const (
	frameBuffer  = 64
	readLimit    = 1 << 16
	writeTimeout = 5 * time.Second
)

// Options configures [Accept].
type Options struct {
	// Codec of binary messages in both directions. Default pcm16.
	Codec Codec

	// Format of the browser's audio in both directions. Default 16 kHz mono.
	Format audio.Format

	// FrameMs is the outbound frame length. Default 20.
	FrameMs int

	// OriginPatterns are host patterns allowed to connect cross-origin.
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.Codec == "" {
		o.Codec = CodecPCM16
	}
	if o.Format.SampleRate == 0 {
		o.Format.SampleRate = 16000
	}
	if o.Format.Channels == 0 {
		o.Format.Channels = 1
	}
	if o.FrameMs == 0 {
		o.FrameMs = 20
	}
	return o
}

// Control is a JSON control message sent by the server.
type Control struct {
	Type       string `json:"type"`
	Codec      Codec  `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	FrameMs    int    `json:"frame_ms,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Conn is one browser connection. It is safe for concurrent use; concurrent
// Play calls are serialized.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	dec *opusDecoder
	enc *opusEncoder

	frames chan audio.AudioFrame

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool

	playMu sync.Mutex
}

// Accept upgrades the request to a WebSocket, announces the audio format
// with a hello message and starts reading audio.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	if opts.Codec != CodecPCM16 && opts.Codec != CodecOpus {
		return nil, fmt.Errorf("browser: unsupported codec %q", opts.Codec)
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
	if err != nil {
		return nil, fmt.Errorf("browser: accept websocket: %w", err)
	}
	c, err := newConn(ws, opts)
	if err != nil {
		_ = ws.Close(websocket.StatusInternalError, "codec setup failed")
		return nil, err
	}

	hello := Control{
		Type:       "hello",
		Codec:      opts.Codec,
		SampleRate: opts.Format.SampleRate,
		Channels:   opts.Format.Channels,
		FrameMs:    opts.FrameMs,
	}
	if err := c.Send(r.Context(), hello); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newConn(ws *websocket.Conn, opts Options) (*Conn, error) {
	c := &Conn{
		ws:     ws,
		opts:   opts,
		frames: make(chan audio.AudioFrame, frameBuffer),
	}
	if opts.Codec == CodecOpus {
		var err error
		if c.dec, err = newOpusDecoder(opts.Format.SampleRate, opts.Format.Channels); err != nil {
			return nil, err
		}
		frameSize := opts.Format.SampleRate * opts.FrameMs / 1000
		if c.enc, err = newOpusEncoder(opts.Format.SampleRate, opts.Format.Channels, frameSize); err != nil {
			return nil, err
		}
	}
	ws.SetReadLimit(readLimit)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readLoop()
	return c, nil
}

// Format returns the browser's audio format.
func (c *Conn) Format() audio.Format { return c.opts.Format }

// Frames implements [audio.Source].
func (c *Conn) Frames() <-chan audio.AudioFrame { return c.frames }

// Err implements [audio.Source]. It wraps [audio.ErrInputUnavailable] when
// the browser went away; it is nil after Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends for any reason.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Close ends the connection with a normal closure. It is safe to call more
// than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	gone := c.err != nil
	c.mu.Unlock()

	defer c.cancel()
	if gone {
		return nil
	}
	if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// Send writes v as a JSON text message. The write is bounded by its own
// timeout; ctx only aborts before the write starts, because the socket does
// not survive an interrupted write.
func (c *Conn) Send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, c.ws, v); err != nil {
		return fmt.Errorf("browser: send: %w", err)
	}
	return nil
}

func (c *Conn) writeBinary(msg []byte) error {
	wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageBinary, msg)
}

// Play implements [audio.Sink]. The clip is converted to the browser format,
// split into frames and sent one frame per FrameMs. Cancelling ctx stops
// sending and tells the browser to drop what it buffered.
func (c *Conn) Play(ctx context.Context, clip audio.Clip) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	conv := audio.Converter{Target: c.opts.Format}
	pcm := conv.Convert(audio.AudioFrame{Data: clip.PCM, SampleRate: clip.SampleRate, Channels: clip.Channels}).Data
	if len(pcm) == 0 {
		return nil
	}

	f := c.opts.Format
	frameBytes := f.SampleRate * c.opts.FrameMs / 1000 * f.Channels * 2
	if err := c.Send(ctx, Control{Type: "playback_start", DurationMs: clip.Duration().Milliseconds()}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(c.opts.FrameMs) * time.Millisecond)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, pcm[off:min(off+frameBytes, len(pcm))])

		msg := frame
		if c.enc != nil {
			var err error
			if msg, err = c.enc.encode(frame); err != nil {
				slog.Warn("browser: dropping prompt frame", "err", err)
				continue
			}
		}
		if err := c.writeBinary(msg); err != nil {
			return fmt.Errorf("browser: write audio: %w", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			c.stopPlayback()
			return ctx.Err()
		case <-c.ctx.Done():
			return fmt.Errorf("browser: play: %w", audio.ErrInputUnavailable)
		}
	}
	return nil
}

func (c *Conn) stopPlayback() {
	if err := c.Send(c.ctx, Control{Type: "playback_stop"}); err != nil {
		slog.Debug("browser: playback stop not sent", "err", err)
	}
}

// readLoop turns binary messages into frames until the socket ends.
func (c *Conn) readLoop() {
	defer close(c.frames)

	var ts time.Duration
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.finish(err)
			return
		}
		if typ != websocket.MessageBinary {
			slog.Debug("browser: ignoring text message", "bytes", len(data))
			continue
		}

		pcm := data
		if c.dec != nil {
			if pcm, err = c.dec.decode(data); err != nil {
				slog.Warn("browser: dropping audio packet", "err", err)
				continue
			}
		}
		frame := audio.AudioFrame{
			Data:       pcm,
			SampleRate: c.opts.Format.SampleRate,
			Channels:   c.opts.Format.Channels,
			Timestamp:  ts,
		}
		ts += frame.Duration()

		select {
		case c.frames <- frame:
		case <-c.ctx.Done():
			return
		default:
			// Consumer is behind; drop rather than stall the socket.
			slog.Debug("browser: frame dropped, consumer behind")
		}
	}
}

// finish records why reading stopped. A read error after our own Close is a
// clean end; anything else means the browser is gone.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = fmt.Errorf("browser: %w: %w", audio.ErrInputUnavailable, err)
	c.cancel()
}
