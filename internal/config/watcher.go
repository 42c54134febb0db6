package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ErrUnchanged is returned by [Watcher.Reload] when the file parsed to a
// config equal to the current one.
var ErrUnchanged = errors.New("config: unchanged")

// Watcher keeps a config file loaded and reports each accepted edit as a
// [ConfigDiff]. Edits that fail to parse or validate are rejected and the
// previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(ConfigDiff)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// fileStamp is the cheap change check done before a file is re-parsed.
type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher for it. onReload may be nil.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onReload func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onReload: onReload}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.current = cfg
	w.stamp = stampOf(info)
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := stampOf(info) == w.stamp
	w.mu.Unlock()
	if same {
		return
	}

	_, err = w.Reload()
	switch {
	case err == nil, errors.Is(err, ErrUnchanged):
	default:
		slog.Warn("config: edit rejected, keeping previous config", "path", w.path, "err", err)
	}
}

// Reload re-reads the file now, e.g. on SIGHUP. On success the new config
// becomes current and onReload receives the diff. A file that differs only
// in formatting yields ErrUnchanged.
func (w *Watcher) Reload() (ConfigDiff, error) {
	w.mu.Lock()
	info, err := os.Stat(w.path)
	if err != nil {
		w.mu.Unlock()
		return ConfigDiff{}, fmt.Errorf("config: watch %q: %w", w.path, err)
	}
	// Record the stamp even for rejected edits so a broken file is not
	// re-parsed on every tick.
	w.stamp = stampOf(info)

	cfg, err := Load(w.path)
	if err != nil {
		w.mu.Unlock()
		return ConfigDiff{}, err
	}
	diff := Diff(w.current, cfg)
	if !diff.Changed() {
		w.mu.Unlock()
		return diff, ErrUnchanged
	}
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path,
		"log_level", diff.LogLevelChanged,
		"vad", diff.VADChanged,
		"cooldown", diff.CooldownChanged,
		"restart_required", diff.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(diff)
	}
	return diff, nil
}
