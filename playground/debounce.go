package playground

import (
	"sync"
	"time"
)

// Clock is the time source used by the debouncer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer delays calls until input has been quiet for delay. Each Call
// cancels the pending one, so only the newest text of a burst reaches fn.
// With maxWait > 0 a burst never waits longer than maxWait from its first
// call.
type Debouncer struct {
	clock   Clock
	delay   time.Duration
	maxWait time.Duration
	fn      func(string)

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	first   time.Time
	pending string
	stopped bool
}

// NewDebouncer returns a Debouncer calling fn. A nil clock uses real time.
func NewDebouncer(clock Clock, delay, maxWait time.Duration, fn func(string)) *Debouncer {
	if clock == nil {
		clock = realClock{}
	}
	return &Debouncer{clock: clock, delay: delay, maxWait: maxWait, fn: fn}
}

// Call schedules fn(text), replacing any pending call.
func (d *Debouncer) Call(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := d.clock.Now()
	if d.timer == nil {
		d.first = now
	} else {
		d.timer.Stop()
	}

	wait := d.delay
	if d.maxWait > 0 {
		deadline := d.first.Add(d.maxWait)
		if now.Add(wait).After(deadline) {
			wait = max(deadline.Sub(now), 0)
		}
	}

	d.gen++
	gen := d.gen
	d.pending = text
	d.timer = d.clock.AfterFunc(wait, func() { d.fire(gen) })
}

// A timer that lost the race with Stop or a newer Call sees a stale
// generation and does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	text := d.pending
	d.pending = ""
	d.timer = nil
	d.mu.Unlock()

	d.fn(text)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop cancels the pending call and ignores later Calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = ""
}
