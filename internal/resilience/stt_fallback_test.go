package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	sttmock "github.com/MrWong99/vozbraille/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	req := stt.Request{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1, Language: "es"}

	tests := []struct {
		name          string
		primary       []sttmock.Response
		secondary     []sttmock.Response
		wantText      string
		wantErr       error
		wantSecondary int
	}{
		{
			name:      "primary answers",
			primary:   []sttmock.Response{{Text: "quiero registrarme"}},
			secondary: []sttmock.Response{{Text: "otro"}},
			wantText:  "quiero registrarme",
		},
		{
			name:          "primary down",
			primary:       []sttmock.Response{{Err: errors.New("connection refused")}},
			secondary:     []sttmock.Response{{Text: "iniciar sesión"}},
			wantText:      "iniciar sesión",
			wantSecondary: 1,
		},
		{
			name:      "empty transcript is not a failure",
			primary:   []sttmock.Response{{Text: ""}},
			secondary: []sttmock.Response{{Text: "otro"}},
			wantText:  "",
		},
		{
			name:          "all down",
			primary:       []sttmock.Response{{Err: errors.New("primary down")}},
			secondary:     []sttmock.Response{{Err: errors.New("secondary down")}},
			wantErr:       ErrAllFailed,
			wantSecondary: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &sttmock.Provider{Responses: tt.primary}
			secondary := &sttmock.Provider{Responses: tt.secondary}
			fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
			fb.AddFallback("openai", secondary)

			got, err := fb.Transcribe(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if n := len(primary.Calls()); n != 1 {
				t.Errorf("primary calls = %d, want 1", n)
			}
			if n := len(secondary.Calls()); n != tt.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", n, tt.wantSecondary)
			}
			if c := primary.Calls(); len(c) == 1 && c[0].Request.Language != "es" {
				t.Errorf("request language = %q, want es", c[0].Request.Language)
			}
		})
	}
}

func TestSTTFallback_HealthTracksBreakers(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Responses: []sttmock.Response{{Err: errors.New("down")}}}
	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	if !fb.Healthy() {
		t.Fatal("Healthy() = false before any call")
	}
	_, _ = fb.Transcribe(context.Background(), stt.Request{})
	if fb.Healthy() {
		t.Fatal("Healthy() = true after the only backend tripped")
	}
	if fb.States()["whisper"] != StateOpen {
		t.Fatalf("States() = %v, want whisper open", fb.States())
	}
}
