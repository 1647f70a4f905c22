package playground

import (
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a debounced evaluation runs.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Playground.
type Option func(*config)

type config struct {
	evalTimeout time.Duration
	loadTimeout time.Duration
	debounce    time.Duration
	maxWait     time.Duration
	retry       bool
	onStatus    func(Status)
	onOutcome   func(Outcome)
	log         *zap.SugaredLogger
	clock       Clock
}

func defaultConfig() config {
	return config{
		debounce: DefaultDebounce,
		retry:    true,
	}
}

// WithEvalTimeout bounds each evaluation. Zero leaves it unbounded.
func WithEvalTimeout(d time.Duration) Option {
	return func(c *config) {
		c.evalTimeout = d
	}
}

// WithLoadTimeout bounds the load and every session rebuild. Zero leaves
// them unbounded.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *config) {
		c.loadTimeout = d
	}
}

// WithDebounce sets the quiet period for DebouncedEvaluate.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		c.debounce = d
	}
}

// WithMaxWait caps how long a burst of edits can postpone evaluation.
// Zero, the default, waits for quiet however long the burst runs.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) {
		c.maxWait = d
	}
}

// WithRetry controls whether Initiate is allowed again after a failed load.
func WithRetry(enabled bool) Option {
	return func(c *config) {
		c.retry = enabled
	}
}

// OnStatus registers a handler called on every status change, in order.
// The handler must not call Initiate or Close.
func OnStatus(fn func(Status)) Option {
	return func(c *config) {
		c.onStatus = fn
	}
}

// OnOutcome registers the handler that receives debounced results.
func OnOutcome(fn func(Outcome)) Option {
	return func(c *config) {
		c.onOutcome = fn
	}
}

// WithLogger replaces the component logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithClock replaces the debouncer's time source.
func WithClock(clock Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}
