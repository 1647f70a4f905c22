package playground

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/cockroachdb/errors"
)

// fakeModule hands out fakeSessions and counts them.
type fakeModule struct {
	mu      sync.Mutex
	created int
	open    int
	closed  bool

	// failFrom makes the n-th and later NewSession calls fail (1-based).
	failFrom int
	// gate, when set, blocks every NewSession after the first until it
	// receives a value or is closed.
	gate chan struct{}
}

func (m *fakeModule) Name() string { return "fake" }

func (m *fakeModule) NewSession(ctx context.Context) (interp.Session, error) {
	m.mu.Lock()
	m.created++
	n := m.created
	gate := m.gate
	m.mu.Unlock()

	if gate != nil && n > 1 {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failFrom > 0 && n >= m.failFrom {
		return nil, errors.New("bootstrap exploded")
	}

	m.mu.Lock()
	m.open++
	m.mu.Unlock()
	return &fakeSession{m: m, defs: map[string]bool{}}, nil
}

func (m *fakeModule) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModule) stats() (created, open int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, m.open
}

type fakeSession struct {
	m      *fakeModule
	defs   map[string]bool
	closed bool
}

// Eval understands a tiny language: "def X" defines X, "use X" reads it,
// "fail" raises without a message, "hang" blocks until ctx ends. Anything
// else is upper-cased.
func (s *fakeSession) Eval(ctx context.Context, code string) (string, error) {
	if s.closed {
		return "", interp.ErrSessionClosed
	}
	switch {
	case strings.HasPrefix(code, "def "):
		s.defs[strings.TrimPrefix(code, "def ")] = true
		return "ok", nil
	case strings.HasPrefix(code, "use "):
		name := strings.TrimPrefix(code, "use ")
		if !s.defs[name] {
			return "", &interp.EvalError{Message: "undefined " + name}
		}
		return name, nil
	case code == "fail":
		return "", &interp.EvalError{}
	case code == "hang":
		<-ctx.Done()
		return "", errors.Wrap(ctx.Err(), "evaluate")
	}
	return strings.ToUpper(code), nil
}

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.m.mu.Lock()
	s.m.open--
	s.m.mu.Unlock()
	return nil
}

func loaderFor(m interp.Module) interp.Loader {
	return interp.LoaderFunc(func(ctx context.Context) (interp.Module, error) {
		return m, nil
	})
}

func failingLoader(err error) interp.Loader {
	return interp.LoaderFunc(func(ctx context.Context) (interp.Module, error) {
		return nil, err
	})
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.stopped && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.done = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// Elapsed returns time since the clock's epoch.
func (c *fakeClock) Elapsed() time.Duration {
	return c.Now().Sub(time.Unix(0, 0))
}
