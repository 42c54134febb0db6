// Package mic captures the local microphone and plays prompts on the default
// speaker through PortAudio. It backs the single-user "mic" mode.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Mic)(nil)
	_ audio.Sink   = (*Mic)(nil)
)

const frameBuffer = 64

// Options configures [Open].
type Options struct {
	// Format of captured audio. Default 16 kHz mono.
	Format audio.Format

	// FrameMs is the capture frame length. Default 20.
	FrameMs int

	// InputDevice selects a capture device by name. Empty means the system
	// default; an unknown name falls back to the default with a warning.
	InputDevice string
}

func (o Options) withDefaults() Options {
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

// Mic is an open microphone plus the default output device. Close releases
// PortAudio.
type Mic struct {
	opts   Options
	stream *portaudio.Stream
	buf    []int16

	frames chan audio.AudioFrame
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed bool

	playMu sync.Mutex
}

// Open initializes PortAudio, opens the input device and starts capturing.
func Open(opts Options) (*Mic, error) {
	opts = opts.withDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: %w: initialize portaudio: %w", audio.ErrInputUnavailable, err)
	}

	framesPerBuffer := opts.Format.SampleRate * opts.FrameMs / 1000
	m := &Mic{
		opts:   opts,
		buf:    make([]int16, framesPerBuffer*opts.Format.Channels),
		frames: make(chan audio.AudioFrame, frameBuffer),
		done:   make(chan struct{}),
	}

	stream, err := m.openInput(framesPerBuffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("mic: %w: open input: %w", audio.ErrInputUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("mic: %w: start input: %w", audio.ErrInputUnavailable, err)
	}
	m.stream = stream

	m.wg.Add(1)
	go m.captureLoop()
	return m, nil
}

func (m *Mic) openInput(framesPerBuffer int) (*portaudio.Stream, error) {
	rate := float64(m.opts.Format.SampleRate)
	if m.opts.InputDevice != "" {
		dev, err := findInput(m.opts.InputDevice)
		if err == nil {
			return portaudio.OpenStream(portaudio.StreamParameters{
				Input: portaudio.StreamDeviceParameters{
					Device:   dev,
					Channels: m.opts.Format.Channels,
					Latency:  dev.DefaultLowInputLatency,
				},
				SampleRate:      rate,
				FramesPerBuffer: framesPerBuffer,
			}, m.buf)
		}
		slog.Warn("mic: input device not found, using default", "device", m.opts.InputDevice, "err", err)
	}
	return portaudio.OpenDefaultStream(m.opts.Format.Channels, 0, rate, framesPerBuffer, m.buf)
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("mic: no input device %q", name)
}

// Frames implements [audio.Source].
func (m *Mic) Frames() <-chan audio.AudioFrame { return m.frames }

// Err implements [audio.Source].
func (m *Mic) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close stops capture and releases PortAudio. It is safe to call more than
// once.
func (m *Mic) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("mic: stop input: %w", err))
	}
	m.wg.Wait()
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mic: close input: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("mic: terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Mic) captureLoop() {
	defer m.wg.Done()
	defer close(m.frames)

	var ts time.Duration
	for {
		err := m.stream.Read()
		select {
		case <-m.done:
			return
		default:
		}
		switch {
		case errors.Is(err, portaudio.InputOverflowed):
			slog.Debug("mic: input overflowed")
		case err != nil:
			m.mu.Lock()
			m.err = fmt.Errorf("mic: %w: read: %w", audio.ErrInputUnavailable, err)
			m.mu.Unlock()
			return
		}

		frame := toFrame(m.buf, m.opts.Format, ts)
		ts += frame.Duration()
		select {
		case m.frames <- frame:
		default:
			slog.Debug("mic: frame dropped, consumer behind")
		}
	}
}

// Play implements [audio.Sink]. It opens an output stream at the clip's own
// format and writes it buffer by buffer; cancelling ctx stops between
// buffers and aborts the stream.
func (m *Mic) Play(ctx context.Context, clip audio.Clip) error {
	m.playMu.Lock()
	defer m.playMu.Unlock()

	if len(clip.PCM) == 0 || clip.SampleRate <= 0 || clip.Channels <= 0 {
		return nil
	}
	framesPerBuffer := clip.SampleRate * m.opts.FrameMs / 1000
	out := make([]int16, framesPerBuffer*clip.Channels)

	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("mic: open output: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("mic: start output: %w", err)
	}

	for off := 0; off < len(clip.PCM); {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		off = fillOutput(out, clip.PCM, off)
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			_ = stream.Abort()
			return fmt.Errorf("mic: write output: %w", err)
		}
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("mic: stop output: %w", err)
	}
	return nil
}

// toFrame copies one capture buffer into a PCM16 frame.
func toFrame(buf []int16, f audio.Format, ts time.Duration) audio.AudioFrame {
	data := make([]byte, len(buf)*2)
	for i, s := range buf {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return audio.AudioFrame{Data: data, SampleRate: f.SampleRate, Channels: f.Channels, Timestamp: ts}
}

// fillOutput decodes PCM16 bytes from pcm[off:] into dst, zero-padding the
// tail, and returns the new offset.
func fillOutput(dst []int16, pcm []byte, off int) int {
	for i := range dst {
		if off+1 < len(pcm) {
			dst[i] = int16(pcm[off]) | int16(pcm[off+1])<<8
			off += 2
		} else {
			dst[i] = 0
			off = len(pcm)
		}
	}
	return off
}
