package recorder_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vozbraille/internal/recorder"
	"github.com/MrWong99/vozbraille/internal/vad"
	vadmock "github.com/MrWong99/vozbraille/internal/vad/mock"
	"github.com/MrWong99/vozbraille/pkg/audio"
	audiomock "github.com/MrWong99/vozbraille/pkg/audio/mock"
)

// frame returns 20 ms of 16 kHz mono PCM at a constant amplitude.
func frame(amp int16, ts time.Duration) audio.AudioFrame {
	buf := make([]byte, 640)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(amp))
	}
	return audio.AudioFrame{Data: buf, SampleRate: 16000, Channels: 1, Timestamp: ts}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ── Segmenter ────────────────────────────────────────────────────────────────

func TestSegmenter_StopConcatenatesInOrder(t *testing.T) {
	t.Parallel()
	s := recorder.NewSegmenter()

	h, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.ID == "" {
		t.Fatal("empty session id")
	}
	s.OnFrame(audio.AudioFrame{Data: []byte{1, 0}, SampleRate: 16000, Channels: 1})
	s.OnVadEvent(vad.Event{Type: vad.VoiceStarted})
	s.OnFrame(audio.AudioFrame{Data: []byte{2, 0}, SampleRate: 16000, Channels: 1})
	s.OnFrame(audio.AudioFrame{Data: []byte{3, 0}, SampleRate: 16000, Channels: 1})

	rec, ok := s.OnVadEvent(vad.Event{Type: vad.StopRecording, Reason: vad.ReasonSilence})
	if !ok {
		t.Fatal("StopRecording did not finalise")
	}
	if string(rec.PCM) != "\x01\x00\x02\x00\x03\x00" {
		t.Errorf("PCM = %v", rec.PCM)
	}
	if rec.SessionID != h.ID || rec.Frames != 3 || rec.Reason != vad.ReasonSilence || !rec.VoiceDetected {
		t.Errorf("recording = %+v", rec)
	}
	if s.Active() {
		t.Error("session still active after stop")
	}
}

func TestSegmenter_SingleSession(t *testing.T) {
	t.Parallel()
	s := recorder.NewSegmenter()

	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(); !errors.Is(err, recorder.ErrSessionActive) {
		t.Errorf("second Start error = %v, want ErrSessionActive", err)
	}
	if _, err := s.Stop(vad.ReasonManual); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stop(vad.ReasonManual); !errors.Is(err, recorder.ErrNoSession) {
		t.Errorf("second Stop error = %v, want ErrNoSession", err)
	}
	if _, err := s.Start(); err != nil {
		t.Errorf("Start after Stop: %v", err)
	}
}

func TestSegmenter_ConcurrentStopFinalisesOnce(t *testing.T) {
	t.Parallel()
	s := recorder.NewSegmenter()
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for range 100 {
		s.OnFrame(frame(100, 0))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Stop(vad.ReasonManual)
			switch {
			case err == nil:
				mu.Lock()
				successes++
				mu.Unlock()
			case errors.Is(err, recorder.ErrStopping), errors.Is(err, recorder.ErrNoSession):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Errorf("successful stops = %d, want 1", successes)
	}
}

func TestSegmenter_FramesWithoutSessionAreDropped(t *testing.T) {
	t.Parallel()
	s := recorder.NewSegmenter()
	s.OnFrame(frame(1, 0))
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Stop(vad.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.PCM) != 0 || !rec.Empty() {
		t.Errorf("expected empty recording, got %d bytes", len(rec.PCM))
	}
}

func TestSegmenter_MaxDuration(t *testing.T) {
	t.Parallel()
	s := recorder.NewSegmenter(recorder.WithMaxDuration(100 * time.Millisecond))
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for i := range 4 {
		if s.OnFrame(frame(1, 0)) {
			t.Fatalf("limit reported after %d frames", i+1)
		}
	}
	if !s.OnFrame(frame(1, 0)) {
		t.Error("limit not reported at 100 ms")
	}
}

// ── Listener ─────────────────────────────────────────────────────────────────

type listenResult struct {
	rec recorder.Recording
	err error
}

func startListening(t *testing.T, ctx context.Context, opts ...recorder.ListenerOption) (*recorder.Listener, *vadmock.Clock, *audiomock.Source, <-chan listenResult) {
	t.Helper()
	clk := vadmock.NewClock(time.Unix(100, 0))
	opts = append(opts,
		recorder.WithDetectorOptions(vad.WithClock(clk)),
		recorder.WithSegmenterOptions(recorder.WithSegmenterClock(clk)),
	)
	l, err := recorder.NewListener(vad.Config{}, opts...)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	src := audiomock.NewSource(256)
	done := make(chan listenResult, 1)
	go func() {
		rec, err := l.Listen(ctx, src)
		done <- listenResult{rec, err}
	}()
	return l, clk, src, done
}

func await(t *testing.T, done <-chan listenResult) listenResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
		return listenResult{}
	}
}

func TestListener_StopsAfterGrace(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []vad.EventType
	)
	l, clk, src, done := startListening(t, context.Background(), recorder.WithObserver(func(e vad.Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	}))

	for i := range 10 {
		src.Push(frame(8000, time.Duration(i)*20*time.Millisecond))
	}
	for i := range 5 {
		src.Push(frame(0, time.Duration(10+i)*20*time.Millisecond))
	}
	waitFor(t, "grace silence", func() bool { return l.Detector().State() == vad.StateGraceSilence })
	clk.Advance(800 * time.Millisecond)

	r := await(t, done)
	if r.err != nil {
		t.Fatalf("Listen: %v", r.err)
	}
	if r.rec.Reason != vad.ReasonSilence || !r.rec.VoiceDetected {
		t.Errorf("recording = reason %q voice %v", r.rec.Reason, r.rec.VoiceDetected)
	}
	if r.rec.SampleRate != 16000 || r.rec.Channels != 1 {
		t.Errorf("format = %dHz %dch", r.rec.SampleRate, r.rec.Channels)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []vad.EventType{vad.VoiceStarted, vad.SilenceAfterVoice, vad.StopRecording}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestListener_BackupCeiling(t *testing.T) {
	t.Parallel()
	l, clk, src, done := startListening(t, context.Background())

	src.Push(frame(0, 0))
	waitFor(t, "first frame", func() bool { return len(l.Detector().History()) == 1 })
	clk.Advance(10 * time.Second)

	r := await(t, done)
	if r.err != nil {
		t.Fatalf("Listen: %v", r.err)
	}
	if r.rec.Reason != vad.ReasonTimeout || !r.rec.Empty() {
		t.Errorf("recording = reason %q empty %v", r.rec.Reason, r.rec.Empty())
	}
}

func TestListener_SourceFailure(t *testing.T) {
	t.Parallel()
	l, clk, src, done := startListening(t, context.Background())

	for range 5 {
		src.Push(frame(8000, 0))
	}
	src.Push(frame(0, 0))
	src.Fail(errors.New("usb unplugged"))

	r := await(t, done)
	if !errors.Is(r.err, audio.ErrInputUnavailable) {
		t.Fatalf("error = %v, want ErrInputUnavailable", r.err)
	}
	if r.rec.Reason != vad.ReasonFailure {
		t.Errorf("reason = %q", r.rec.Reason)
	}
	if l.Detector().State() != vad.StateStopped {
		t.Errorf("detector state = %v", l.Detector().State())
	}
	if n := clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d", n)
	}
}

func TestListener_ContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	_, _, src, done := startListening(t, ctx)

	src.Push(frame(8000, 0))
	cancel()

	r := await(t, done)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", r.err)
	}
	if r.rec.Reason != vad.ReasonManual {
		t.Errorf("reason = %q", r.rec.Reason)
	}
}

func TestListener_ConvertsBrowserFormat(t *testing.T) {
	t.Parallel()
	l, _, src, done := startListening(t, context.Background(),
		recorder.WithSegmenterOptions(recorder.WithMaxDuration(200*time.Millisecond)))

	stereo := make([]byte, 960*4) // 20 ms of 48 kHz stereo
	for i := 0; i < len(stereo); i += 2 {
		binary.LittleEndian.PutUint16(stereo[i:], uint16(8000))
	}
	for range 10 {
		src.Push(audio.AudioFrame{Data: stereo, SampleRate: 48000, Channels: 2})
	}

	r := await(t, done)
	if r.err != nil {
		t.Fatalf("Listen: %v", r.err)
	}
	if r.rec.Reason != vad.ReasonMaxDuration {
		t.Errorf("reason = %q", r.rec.Reason)
	}
	if r.rec.SampleRate != 16000 || r.rec.Channels != 1 || len(r.rec.PCM) != 10*640 {
		t.Errorf("recording = %dHz %dch %d bytes", r.rec.SampleRate, r.rec.Channels, len(r.rec.PCM))
	}
	if l.Detector().State() != vad.StateStopped {
		t.Errorf("detector state = %v", l.Detector().State())
	}
}
