package playground

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fire struct {
	at   time.Duration
	text string
}

type recorder struct {
	mu    sync.Mutex
	clock *fakeClock
	fires []fire
}

func (r *recorder) record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, fire{at: r.clock.Elapsed(), text: text})
}

func (r *recorder) get() []fire {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fire(nil), r.fires...)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	d := NewDebouncer(clock, 500*time.Millisecond, 0, rec.record)

	d.Call("t0")
	clock.Advance(100 * time.Millisecond)
	d.Call("t100")
	clock.Advance(50 * time.Millisecond)
	d.Call("t150")

	clock.Advance(499 * time.Millisecond)
	assert.Empty(t, rec.get(), "fired before the window closed")

	clock.Advance(time.Millisecond)
	require.Len(t, rec.get(), 1)
	assert.Equal(t, fire{at: 650 * time.Millisecond, text: "t150"}, rec.get()[0])

	clock.Advance(5 * time.Second)
	assert.Len(t, rec.get(), 1)
}

func TestDebounceLateEditSupersedes(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	d := NewDebouncer(clock, 500*time.Millisecond, 0, rec.record)

	d.Call("t0")
	clock.Advance(100 * time.Millisecond)
	d.Call("t100")
	clock.Advance(50 * time.Millisecond)
	d.Call("t150")
	clock.Advance(400 * time.Millisecond)
	d.Call("t550")

	clock.Advance(time.Second)
	assert.Equal(t, []fire{{at: 1050 * time.Millisecond, text: "t550"}}, rec.get())
}

func TestDebounceMaxWait(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	d := NewDebouncer(clock, 500*time.Millisecond, 500*time.Millisecond, rec.record)

	d.Call("t0")
	clock.Advance(100 * time.Millisecond)
	d.Call("t100")
	clock.Advance(50 * time.Millisecond)
	d.Call("t150")
	clock.Advance(400 * time.Millisecond)
	d.Call("t550")

	clock.Advance(450 * time.Millisecond)
	assert.Equal(t, []fire{{at: 500 * time.Millisecond, text: "t150"}}, rec.get())

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, []fire{
		{at: 500 * time.Millisecond, text: "t150"},
		{at: 1050 * time.Millisecond, text: "t550"},
	}, rec.get())
}

func TestDebounceMaxWaitBoundsContinuousTyping(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	d := NewDebouncer(clock, 300*time.Millisecond, time.Second, rec.record)

	// An edit every 100ms never leaves a 300ms gap.
	for i := 0; i < 15; i++ {
		d.Call(string(rune('a' + i)))
		clock.Advance(100 * time.Millisecond)
	}

	fires := rec.get()
	require.NotEmpty(t, fires)
	assert.Equal(t, time.Second, fires[0].at)
}

func TestDebounceCancelAndStop(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	d := NewDebouncer(clock, 500*time.Millisecond, 0, rec.record)

	d.Call("dropped")
	d.Cancel()
	clock.Advance(time.Second)
	assert.Empty(t, rec.get())

	d.Call("kept")
	clock.Advance(time.Second)
	assert.Equal(t, []fire{{at: 1500 * time.Millisecond, text: "kept"}}, rec.get())

	d.Call("after stop")
	d.Stop()
	d.Call("ignored")
	clock.Advance(time.Second)
	assert.Len(t, rec.get(), 1)
}

func TestDebounceRealClock(t *testing.T) {
	got := make(chan string, 2)
	d := NewDebouncer(nil, 20*time.Millisecond, 0, func(s string) { got <- s })

	d.Call("a")
	d.Call("b")

	select {
	case s := <-got:
		assert.Equal(t, "b", s)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never fired")
	}

	select {
	case s := <-got:
		t.Fatalf("unexpected second call %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}
