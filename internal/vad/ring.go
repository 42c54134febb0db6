package vad

import "github.com/MrWong99/vozbraille/pkg/audio"

// levelRing is a fixed-capacity FIFO of level samples. The oldest sample is
// evicted when a new one arrives at capacity.
type levelRing struct {
	buf   []audio.LevelSample
	head  int // index of the oldest sample
	count int
}

func newLevelRing(capacity int) *levelRing {
	return &levelRing{buf: make([]audio.LevelSample, capacity)}
}

func (r *levelRing) push(s audio.LevelSample) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// trailingAverage averages the newest n samples (fewer if fewer are held).
func (r *levelRing) trailingAverage(n int) float64 {
	n = min(n, r.count)
	if n == 0 {
		return 0
	}
	sum := 0
	for i := r.count - n; i < r.count; i++ {
		sum += r.buf[(r.head+i)%len(r.buf)].Level
	}
	return float64(sum) / float64(n)
}

func (r *levelRing) snapshot() []audio.LevelSample {
	out := make([]audio.LevelSample, r.count)
	for i := range r.count {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *levelRing) reset() {
	r.head, r.count = 0, 0
}
