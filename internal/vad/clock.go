package vad

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Clock abstracts time so that tests can drive grace and ceiling timers
// deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall-clock [Clock].
type SystemClock struct{}

// Now implements [Clock].
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc implements [Clock].
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
