package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [FallbackGroup] produced a
// result. The last backend error is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig is applied to every breaker a [FallbackGroup] creates. The
// Name field of CircuitBreaker is overwritten with each backend's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and its fallbacks in preference order,
// each behind its own [CircuitBreaker].
//
// Backends must be registered before the group is shared between goroutines;
// calls are safe for concurrent use afterwards.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after every earlier one.
func (fg *FallbackGroup[T]) AddFallback(name string, backend T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   backend,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of registered backends.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// States returns each backend's breaker state keyed by backend name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.entries))
	for i := range fg.entries {
		out[fg.entries[i].name] = fg.entries[i].breaker.State()
	}
	return out
}

// Healthy reports whether at least one backend would currently accept a call.
func (fg *FallbackGroup[T]) Healthy() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute is [ExecuteWithResult] for calls that return only an error.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn with each backend in order until one succeeds.
// Backends whose breaker is open are skipped. When ctx is done after a
// failed attempt, ctx's error is returned at once and no further backend is
// tried. Otherwise the result is an error wrapping [ErrAllFailed] and the last
// backend error.
//
// It is a function rather than a method because methods cannot declare type
// parameters.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			if i > 0 {
				slog.Info("served by fallback backend", "backend", entry.name)
			}
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend with open circuit", "backend", entry.name)
			continue
		}
		slog.Warn("backend failed, trying next", "backend", entry.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
