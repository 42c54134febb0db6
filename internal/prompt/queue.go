package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Enqueue and Wait after Close.
var ErrQueueClosed = errors.New("prompt: queue closed")

// DefaultCooldown is how long after a prompt finished playing that
// re-enqueueing it is suppressed.
const DefaultCooldown = 2500 * time.Millisecond

// Result reports what Enqueue did with an item.
type Result int

const (
	// Queued means the item will be played.
	Queued Result = iota + 1
	// Suppressed means the same prompt is still queued or finished playing
	// within the cooldown window, and the item was dropped.
	Suppressed
)

// String returns the lowercase result name.
func (r Result) String() string {
	switch r {
	case Queued:
		return "queued"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// EventKind classifies queue events.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventFinished
	EventFellBack
	EventFailed
	EventInterrupted
	EventSuppressed
)

// String returns the lowercase event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventFinished:
		return "finished"
	case EventFellBack:
		return "fell_back"
	case EventFailed:
		return "failed"
	case EventInterrupted:
		return "interrupted"
	case EventSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Event is delivered to the observer registered with [WithObserver].
type Event struct {
	Kind EventKind
	Item Item
	Err  error
	At   time.Time
}

// Option configures a [Queue] during construction.
type Option func(*Queue)

// WithCooldown sets the replay suppression window. Zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(q *Queue) {
		q.cooldown = max(d, 0)
	}
}

// WithFallback sets the player used when the primary player fails.
func WithFallback(p Player) Option {
	return func(q *Queue) {
		q.fallback = p
	}
}

// WithObserver registers fn to receive queue events. fn is called from the
// dispatch goroutine or from Enqueue and must not block.
func WithObserver(fn func(Event)) Option {
	return func(q *Queue) {
		q.observe = fn
	}
}

// WithClock replaces the time source used for the cooldown.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// Queue plays prompts one at a time in FIFO order. At most one item is
// playing at any moment; the next starts only after the current one has
// finished, failed, or been interrupted.
//
// All exported methods are safe for concurrent use.
type Queue struct {
	player   Player
	fallback Player
	cooldown time.Duration
	now      func() time.Time
	observe  func(Event)

	mu            sync.Mutex
	items         []Item
	pending       map[string]int       // queued or playing items by key
	lastPlayed    map[string]time.Time // when each key last stopped playing
	current       string               // key of the playing item
	playing       bool
	cancelPlaying context.CancelFunc
	busy          chan struct{} // closed on the transition to idle; nil while idle
	closed        bool

	base   context.Context
	stop   context.CancelFunc
	notify chan struct{} // signalled when an item is enqueued
	done   chan struct{} // closed by Close to stop the dispatch goroutine
	wg     sync.WaitGroup
}

// New creates a Queue that plays items with player and starts its dispatch
// goroutine. A nil player sends every item straight to the fallback.
//
// Call [Queue.Close] to stop the goroutine.
func New(player Player, opts ...Option) *Queue {
	q := &Queue{
		player:     player,
		cooldown:   DefaultCooldown,
		now:        time.Now,
		pending:    make(map[string]int),
		lastPlayed: make(map[string]time.Time),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.stop = context.WithCancel(context.Background())
	q.wg.Add(1)
	go q.dispatch()
	return q
}

// Enqueue appends item to the queue. With a cooldown set, the item is
// suppressed while the same prompt is queued or playing, and for the
// cooldown window after it stopped playing. [Item.Again] skips the window.
func (q *Queue) Enqueue(item Item) (Result, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrQueueClosed
	}
	now := q.now()
	key := item.key()
	if why := q.suppressLocked(key, item.Repeat, now); why != "" {
		q.mu.Unlock()
		slog.Debug("prompt suppressed", "prompt_id", item.ID, "why", why)
		q.emit(Event{Kind: EventSuppressed, Item: item, At: now})
		return Suppressed, nil
	}
	q.pending[key]++
	q.items = append(q.items, item)
	if q.busy == nil {
		q.busy = make(chan struct{})
	}
	q.mu.Unlock()

	// Wake the dispatch goroutine.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return Queued, nil
}

// suppressLocked returns why an item with key may not be queued now, or ""
// when it may.
func (q *Queue) suppressLocked(key string, repeat bool, now time.Time) string {
	if q.cooldown <= 0 {
		return ""
	}
	if q.pending[key] > 0 {
		return "already queued"
	}
	if last, ok := q.lastPlayed[key]; ok && !repeat && now.Sub(last) < q.cooldown {
		return "played " + now.Sub(last).String() + " ago"
	}
	return ""
}

// InterruptAll clears the queue and tears down the item playing now, if
// any. Cooldown history is kept.
func (q *Queue) InterruptAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dropQueuedLocked()
	if q.cancelPlaying != nil {
		q.cancelPlaying()
	}
}

// Wait blocks until nothing is queued or playing, ctx is done, or the
// queue is closed.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	busy := q.busy
	q.mu.Unlock()
	if busy == nil {
		return nil
	}

	select {
	case <-busy:
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ErrQueueClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Playing reports whether an item is playing right now.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len returns the number of items waiting behind the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close interrupts playback, drops queued items and stops the dispatch
// goroutine. Close is idempotent; subsequent calls return nil.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.dropQueuedLocked()
	q.mu.Unlock()

	q.stop()
	close(q.done)
	q.wg.Wait()

	q.mu.Lock()
	if q.busy != nil {
		close(q.busy)
		q.busy = nil
	}
	q.mu.Unlock()
	return nil
}

// dispatch is the background goroutine that pulls items from the queue and
// plays them. It runs until [Queue.Close] is called.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			item, ctx, ok := q.dequeue()
			if !ok {
				break
			}
			kind := q.play(ctx, item)
			q.release(item, kind)

			select {
			case <-q.done:
				return
			default:
			}
		}
	}
}

// dequeue pops the oldest item and takes the single-flight slot. On an
// empty queue it marks the queue idle and returns ok=false.
func (q *Queue) dequeue() (Item, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.busy != nil && !q.closed {
			close(q.busy)
			q.busy = nil
		}
		return Item{}, nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]

	ctx, cancel := context.WithCancel(q.base)
	q.playing = true
	q.current = item.key()
	q.cancelPlaying = cancel
	return item, ctx, true
}

// release frees the single-flight slot after an item ends. An item that
// played, fell back or failed starts its cooldown now; an interrupted one
// does not count as played.
func (q *Queue) release(item Item, kind EventKind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelPlaying != nil {
		q.cancelPlaying()
		q.cancelPlaying = nil
	}
	key := item.key()
	if q.pending[key] > 0 {
		q.pending[key]--
		if q.pending[key] == 0 {
			delete(q.pending, key)
		}
	}
	if kind != EventInterrupted {
		q.lastPlayed[key] = q.now()
	}
	q.playing = false
	q.current = ""
}

// dropQueuedLocked empties the queue; only the playing item stays pending.
func (q *Queue) dropQueuedLocked() {
	q.items = nil
	clear(q.pending)
	if q.playing {
		q.pending[q.current] = 1
	}
}

// play runs the primary player and, on failure, the fallback, and returns
// how the item ended. Neither failure is returned: a prompt that cannot be
// played is dropped so the queue keeps moving.
func (q *Queue) play(ctx context.Context, item Item) EventKind {
	q.emit(Event{Kind: EventStarted, Item: item, At: q.now()})
	end := func(kind EventKind, err error) EventKind {
		q.emit(Event{Kind: kind, Item: item, Err: err, At: q.now()})
		return kind
	}

	err := errSpeakOnly
	if q.player != nil {
		err = q.player.Play(ctx, item)
	}
	if err == nil {
		return end(EventFinished, nil)
	}
	if ctx.Err() != nil {
		return end(EventInterrupted, err)
	}
	if q.fallback == nil {
		slog.Warn("prompt dropped", "prompt_id", item.ID, "err", err)
		return end(EventFailed, err)
	}

	speakOnly := errors.Is(err, errSpeakOnly)
	if !speakOnly {
		slog.Debug("prompt clip unavailable, speaking text", "prompt_id", item.ID, "err", err)
	}
	if ferr := q.fallback.Play(ctx, item); ferr != nil {
		if ctx.Err() != nil {
			return end(EventInterrupted, ferr)
		}
		err = errors.Join(err, ferr)
		slog.Warn("prompt dropped", "prompt_id", item.ID, "err", err)
		return end(EventFailed, err)
	}
	if speakOnly {
		return end(EventFinished, nil)
	}
	return end(EventFellBack, nil)
}

func (q *Queue) emit(ev Event) {
	if q.observe != nil {
		q.observe(ev)
	}
}
