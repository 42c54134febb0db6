package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func failN(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errTest })
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})
	if cb.maxFailures != 3 {
		t.Errorf("maxFailures = %d, want 3", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 1 {
		t.Errorf("halfOpenMax = %d, want 1", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "whisper" {
		t.Errorf("Name() = %q, want whisper", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Now: clk.Now})

	failN(cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after 2 failures, want closed", cb.State())
	}
	failN(cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after 3 failures, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn was called through an open breaker")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})

	failN(cb, 2)
	_ = cb.Execute(func() error { return nil })
	failN(cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success resets the count)", cb.State())
	}
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})

	for range 5 {
		err := cb.Execute(func() error {
			return fmt.Errorf("whisper: request: %w", context.Canceled)
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled passed through", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{name: "probe succeeds", probe: nil, want: StateClosed},
		{name: "probe fails", probe: errTest, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				MaxFailures:  2,
				ResetTimeout: 10 * time.Second,
				Now:          clk.Now,
			})
			failN(cb, 2)

			clk.Advance(9 * time.Second)
			if cb.State() != StateOpen {
				t.Fatalf("state = %v before timeout, want open", cb.State())
			}
			clk.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v after timeout, want half-open", cb.State())
			}

			_ = cb.Execute(func() error { return tt.probe })
			if cb.State() != tt.want {
				t.Fatalf("state = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		Now:          clk.Now,
	})
	failN(cb, 1)
	clk.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()

	var mu sync.Mutex
	var got []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "deepgram",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          clk.Now,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})

	failN(cb, 1)
	clk.Advance(time.Second)
	_ = cb.Execute(func() error { return nil })
	failN(cb, 1)
	cb.Reset()

	want := []string{
		"deepgram:closed->open",
		"deepgram:open->half-open",
		"deepgram:half-open->closed",
		"deepgram:closed->open",
		"deepgram:open->closed",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
