package prompt_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/MrWong99/vozbraille/internal/prompt"
	"github.com/MrWong99/vozbraille/pkg/audio"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

var ttsVoice = tts.Voice{Language: "es"}

func TestCatalog_EveryIDHasText(t *testing.T) {
	t.Parallel()

	ids := prompt.IDs()
	if len(ids) != 20 {
		t.Errorf("catalog has %d prompts, want 20", len(ids))
	}
	for _, id := range ids {
		if prompt.Text(id) == "" {
			t.Errorf("prompt %s has no fallback text", id)
		}
	}
}

func TestClipLibrary_Missing(t *testing.T) {
	t.Parallel()

	lib := prompt.NewClipLibrary(fstest.MapFS{})
	if _, err := lib.Load(prompt.Welcome); !errors.Is(err, prompt.ErrClipNotFound) {
		t.Errorf("Load = %v, want ErrClipNotFound", err)
	}

	missing, err := lib.Preload(prompt.Welcome, prompt.Goodbye)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if len(missing) != 2 {
		t.Errorf("missing = %v, want both", missing)
	}
}

func TestClipLibrary_InvalidMP3(t *testing.T) {
	t.Parallel()

	lib := prompt.NewClipLibrary(fstest.MapFS{
		"welcome.mp3": &fstest.MapFile{Data: []byte("not an mp3")},
	})
	_, err := lib.Load(prompt.Welcome)
	if err == nil || errors.Is(err, prompt.ErrClipNotFound) {
		t.Errorf("Load = %v, want decode error", err)
	}
	if _, perr := lib.Preload(prompt.Welcome); perr == nil {
		t.Error("Preload did not report the decode error")
	}
}

func TestClipLibrary_AddServesCached(t *testing.T) {
	t.Parallel()

	lib := prompt.NewClipLibrary(nil)
	want := audio.Clip{PCM: []byte{1, 2}, SampleRate: 16000, Channels: 1}
	lib.Add(prompt.Goodbye, want)

	got, err := lib.Load(prompt.Goodbye)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got.PCM) != string(want.PCM) || got.SampleRate != want.SampleRate {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}
