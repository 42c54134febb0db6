package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/vozbraille/pkg/provider/stt"
	"github.com/MrWong99/vozbraille/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one kind's name to constructor table.
type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f factories[P]) create(entry ProviderEntry) (P, error) {
	build, ok := f.m[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (known: %v)", ErrProviderNotRegistered, f.kind, entry.Name, f.names())
	}
	p, err := build(entry)
	if err != nil {
		var zero P
		return zero, fmt.Errorf("config: create %s/%s: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[P]) names() []string { return slices.Sorted(maps.Keys(f.m)) }

// Registry maps the provider names used in the config file to constructors.
// main registers the built-in backends; tests register mocks. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", m: map[string]Factory[stt.Provider]{}},
		tts: factories[tts.Provider]{kind: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

// RegisterSTT registers a transcriber factory under name, replacing any
// earlier one.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterTTS registers a prompt voice factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// CreateSTT builds the transcriber named by entry.Name. An unknown name
// yields [ErrProviderNotRegistered]; factory errors are wrapped.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateTTS builds the prompt voice named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// STTNames returns the registered transcriber names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.names()
}

// TTSNames returns the registered prompt voice names, sorted.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.names()
}
