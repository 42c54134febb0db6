package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	"github.com/MrWong99/vozbraille/pkg/provider/stt/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		fields map[string]string
		path   string
		wavLen int64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		if fh := r.MultipartForm.File["file"]; len(fh) > 0 {
			wavLen = fh[0].Size
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " quiero registrarme "})
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm := make([]byte, 3200)
	tr, err := p.Transcribe(context.Background(), stt.Request{
		PCM:        pcm,
		SampleRate: 16000,
		Channels:   1,
		Keywords:   []stt.KeywordBoost{{Keyword: "arroba"}},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "quiero registrarme" {
		t.Errorf("Text = %q", tr.Text)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/audio/transcriptions" {
		t.Errorf("path = %q", path)
	}
	want := map[string]string{"model": "whisper-1", "language": "es", "prompt": "arroba"}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %q = %q, want %q", k, fields[k], v)
		}
	}
	if wavLen != int64(44+len(pcm)) {
		t.Errorf("uploaded %d bytes, want %d", wavLen, 44+len(pcm))
	}
}

func TestTranscribe_EmptyRecording(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("test-key", "")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error")
	}
}
