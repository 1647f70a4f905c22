// Package interp defines the contracts between the playground orchestrator
// and the interpreter engines that back it.
//
// A [Loader] produces a [Module]: a compiled, immutable runtime image that
// can be instantiated any number of times. Each [Session] is one live,
// bootstrapped interpreter instance. Sessions accumulate state, so callers
// that need isolation between evaluations discard a session after use and
// build a new one from the same Module.
package interp

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSessionClosed is returned by Eval on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionBusy is returned by Eval while another Eval is running.
	ErrSessionBusy = errors.New("session busy")
)

// Loader produces a compiled interpreter module.
type Loader interface {
	Load(ctx context.Context) (Module, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (Module, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (Module, error) {
	return f(ctx)
}

// Module is a compiled runtime image with the bootstrap vocabulary attached.
// It must be safe for concurrent use by multiple NewSession calls.
type Module interface {
	// Name identifies the engine ("ruby", "javascript").
	Name() string

	// NewSession instantiates a fresh interpreter and evaluates the bootstrap
	// script against it. A bootstrap failure is returned as an error.
	NewSession(ctx context.Context) (Session, error)

	// Close releases the compiled image. Sessions created from it must be
	// closed first.
	Close(ctx context.Context) error
}

// Session is a live interpreter instance. It is not safe for concurrent use.
type Session interface {
	// Eval evaluates code and returns the string form of its value.
	// Errors raised by the evaluated code are returned as *EvalError; any
	// other error means the session itself failed and must be discarded.
	Eval(ctx context.Context, code string) (string, error)

	Close() error
}

// EvalError is an error raised inside the interpreter by evaluated code:
// a syntax error, an exception, a failed assertion.
type EvalError struct {
	// Message is the interpreter's own description. It may be empty when
	// the interpreter supplied none.
	Message string
}

func (e *EvalError) Error() string {
	if e.Message == "" {
		return "evaluation failed"
	}
	return e.Message
}

// SerializerConfig mirrors Anchor.config: switches that change how the
// bootstrap serializer renders types.
type SerializerConfig struct {
	// ArrayBracketNotation renders arrays as (T)[] instead of Array<T>.
	ArrayBracketNotation bool
	// MaybeAsUnion renders Maybe<T> as T | null.
	MaybeAsUnion bool
}
