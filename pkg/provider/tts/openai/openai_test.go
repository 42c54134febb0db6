package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/vozbraille/pkg/provider/tts"
	"github.com/MrWong99/vozbraille/pkg/provider/tts/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body map[string]any
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{1, 0, 2, 0, 3})
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "", openai.WithBaseURL(srv.URL), openai.WithVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "hola", tts.Voice{Speed: 1.25})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz x%d, want 24000 x1", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != 4 {
		t.Errorf("pcm length = %d, want 4 (odd trailing byte dropped)", len(clip.PCM))
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/audio/speech" {
		t.Errorf("path = %q, want /audio/speech", path)
	}
	want := map[string]any{"input": "hola", "model": "tts-1", "voice": "nova", "response_format": "pcm", "speed": 1.25}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, body[k], v)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p, _ := openai.New("test-key", "", openai.WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hola", tts.Voice{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("test-key", "")
	if _, err := p.Synthesize(context.Background(), "", tts.Voice{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}
