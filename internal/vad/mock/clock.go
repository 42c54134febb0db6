// Package mock provides a manually advanced [vad.Clock] for tests.
package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/vozbraille/internal/vad"
)

var _ vad.Clock = (*Clock)(nil)

// Clock is a fake clock. Timers fire only when Advance moves time past their
// deadline, on the goroutine calling Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
	seq    int
}

type timer struct {
	clock    *Clock
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

// NewClock returns a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements [vad.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements [vad.Clock].
func (c *Clock) AfterFunc(d time.Duration, f func()) vad.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d and fires every due timer in deadline
// order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.nextDueLocked(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.deadline
		due.fired = true
		c.mu.Unlock()
		due.fn()
	}
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	var live []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].deadline.Equal(live[j].deadline) {
			return live[i].seq < live[j].seq
		}
		return live[i].deadline.Before(live[j].deadline)
	})
	if len(live) == 0 || live[0].deadline.After(target) {
		return nil
	}
	return live[0]
}

// Stop implements [vad.Timer].
func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
