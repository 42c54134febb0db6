package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vozbraille/internal/config"
)

const watchedYAML = `
server:
  log_level: info
vad:
  grace_period: 800ms
prompts:
  cooldown: 2s
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
  tts:
    name: openai
`

// ── helpers ──────────────────────────────────────────────────────────────────

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// edit rewrites path with old replaced by new and bumps the mtime so coarse
// filesystem clocks still see a change.
func edit(t *testing.T, path, old, new string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	writeConfig(t, path, strings.Replace(string(data), old, new, 1))
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

type diffRecorder struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
	ch    chan struct{}
}

func newDiffRecorder() *diffRecorder { return &diffRecorder{ch: make(chan struct{}, 8)} }

func (r *diffRecorder) record(d config.ConfigDiff) {
	r.mu.Lock()
	r.diffs = append(r.diffs, d)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *diffRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diffs)
}

func newWatched(t *testing.T, onReload func(config.ConfigDiff)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vozbraille.yaml")
	writeConfig(t, path, watchedYAML)
	w, err := config.NewWatcher(path, onReload, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

// ── Reload ───────────────────────────────────────────────────────────────────

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newWatched(t, nil)
	cfg := w.Current()
	if cfg.VAD.GracePeriod != 800*time.Millisecond || cfg.Prompts.Cooldown != 2*time.Second {
		t.Errorf("Current() = vad %+v cooldown %v", cfg.VAD, cfg.Prompts.Cooldown)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, bad, "server:\n  log_level: loud\n")
	if _, err := config.NewWatcher(bad, nil); err == nil {
		t.Fatal("expected error for invalid file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		old, new string
		check    func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name: "log level",
			old:  "log_level: info", new: "log_level: debug",
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name: "vad grace period",
			old:  "grace_period: 800ms", new: "grace_period: 1200ms",
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VADChanged || d.NewVAD.GracePeriod != 1200*time.Millisecond {
					t.Errorf("diff = %+v", d)
				}
				if len(d.RestartRequired) != 0 {
					t.Errorf("RestartRequired = %v", d.RestartRequired)
				}
			},
		},
		{
			name: "provider needs restart",
			old:  "http://localhost:8081", new: "http://localhost:9000",
			check: func(t *testing.T, d config.ConfigDiff) {
				if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "providers" {
					t.Errorf("RestartRequired = %v, want [providers]", d.RestartRequired)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newDiffRecorder()
			w, path := newWatched(t, rec.record)
			edit(t, path, tt.old, tt.new)

			d, err := w.Reload()
			if err != nil {
				t.Fatalf("Reload: %v", err)
			}
			tt.check(t, d)
			if rec.count() != 1 {
				t.Errorf("onReload calls = %d, want 1", rec.count())
			}
		})
	}
}

func TestWatcher_ReloadRejectsInvalidEdit(t *testing.T) {
	t.Parallel()
	rec := newDiffRecorder()
	w, path := newWatched(t, rec.record)
	edit(t, path, "log_level: info", "log_level: loud")

	if _, err := w.Reload(); err == nil {
		t.Fatal("expected validation error")
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log level = %q, want previous %q", got, config.LogInfo)
	}
	if rec.count() != 0 {
		t.Errorf("onReload called %d times for a rejected edit", rec.count())
	}
}

func TestWatcher_ReloadUnchanged(t *testing.T) {
	t.Parallel()
	rec := newDiffRecorder()
	w, path := newWatched(t, rec.record)
	// Reordering whitespace parses to the same config.
	edit(t, path, "server:\n", "\nserver:\n")

	if _, err := w.Reload(); !errors.Is(err, config.ErrUnchanged) {
		t.Fatalf("Reload() = %v, want ErrUnchanged", err)
	}
	if rec.count() != 0 {
		t.Errorf("onReload called %d times for an unchanged config", rec.count())
	}
}

// ── Run ──────────────────────────────────────────────────────────────────────

func TestWatcher_RunPicksUpEdit(t *testing.T) {
	t.Parallel()
	rec := newDiffRecorder()
	w, path := newWatched(t, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	edit(t, path, "cooldown: 2s", "cooldown: 5s")
	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("edit not picked up")
	}
	if got := w.Current().Prompts.Cooldown; got != 5*time.Second {
		t.Errorf("Current() cooldown = %v, want 5s", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_RunIgnoresTouch(t *testing.T) {
	t.Parallel()
	rec := newDiffRecorder()
	w, path := newWatched(t, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("onReload called %d times for a touch", rec.count())
	}
}

func TestWatcher_RunDetectsSizeChangeAtSameMtime(t *testing.T) {
	t.Parallel()
	rec := newDiffRecorder()
	w, path := newWatched(t, rec.record)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	writeConfig(t, path, strings.Replace(watchedYAML, "cooldown: 2s", "cooldown: 2500ms", 1))
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("size change not picked up")
	}
	if got := w.Current().Prompts.Cooldown; got != 2500*time.Millisecond {
		t.Errorf("Current() cooldown = %v, want 2.5s", got)
	}
}
