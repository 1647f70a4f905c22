// Package javascript is an embedded engine for the playground built on
// goja. It needs no download: the bootstrap vocabulary is compiled once per
// load into a goja.Program and every session is a fresh goja.Runtime that
// runs it.
package javascript

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/cockroachdb/errors"
	"github.com/dop251/goja"
)

//go:embed anchor.js
var anchorSource string

// Example is the Exhaustive snippet shown in a fresh editor.
//
//go:embed example.js
var Example string

// Name identifies the engine.
const Name = "javascript"

// ErrModuleClosed is returned by NewSession after Close.
var ErrModuleClosed = errors.New("javascript module closed")

// Bootstrap returns the vocabulary script with Anchor.config set from cfg.
func Bootstrap(cfg interp.SerializerConfig) string {
	var b strings.Builder
	b.WriteString(anchorSource)
	fmt.Fprintf(&b, "\nAnchor.config = Object.freeze({ arrayBracketNotation: %t, maybeAsUnion: %t });\n",
		cfg.ArrayBracketNotation, cfg.MaybeAsUnion)
	return b.String()
}

// Loader compiles the bootstrap. It implements interp.Loader.
type Loader struct {
	Config interp.SerializerConfig
}

var _ interp.Loader = (*Loader)(nil)

// NewLoader returns a Loader for cfg.
func NewLoader(cfg interp.SerializerConfig) *Loader {
	return &Loader{Config: cfg}
}

func (l *Loader) Load(ctx context.Context) (interp.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, err := goja.Compile("anchor.js", Bootstrap(l.Config), false)
	if err != nil {
		return nil, errors.Wrap(err, "compile bootstrap")
	}
	return &Module{program: prog}, nil
}

// Module holds the compiled bootstrap. goja.Program is immutable and may
// be run by any number of runtimes concurrently.
type Module struct {
	program *goja.Program
	closed  atomic.Bool
}

var _ interp.Module = (*Module)(nil)

func (m *Module) Name() string {
	return Name
}

func (m *Module) NewSession(ctx context.Context) (interp.Session, error) {
	if m.closed.Load() {
		return nil, ErrModuleClosed
	}

	s := newSession()
	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ctx.Err())
	})
	_, err := s.vm.RunProgram(m.program)
	if !stop() {
		return nil, errors.Wrap(ctx.Err(), "bootstrap")
	}
	if err != nil {
		return nil, errors.Wrap(toEvalError(err), "bootstrap")
	}
	return s, nil
}

func (m *Module) Close(ctx context.Context) error {
	m.closed.Store(true)
	return nil
}

// Session is one goja runtime with the vocabulary loaded.
type Session struct {
	vm     *goja.Runtime
	output strings.Builder

	mu     sync.Mutex
	closed atomic.Bool
}

var _ interp.Session = (*Session)(nil)

func newSession() *Session {
	s := &Session{vm: goja.New()}

	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		s.output.WriteString(strings.Join(args, " "))
		s.output.WriteString("\n")
		return goja.Undefined()
	}
	console := s.vm.NewObject()
	_ = console.Set("log", logFn)
	_ = console.Set("error", logFn)
	_ = s.vm.Set("console", console)

	return s
}

// Eval runs code as a script and returns the string form of its completion
// value. Context expiry interrupts the runtime and closes the session.
func (s *Session) Eval(ctx context.Context, code string) (string, error) {
	if !s.mu.TryLock() {
		return "", interp.ErrSessionBusy
	}
	defer s.mu.Unlock()

	if s.closed.Load() {
		return "", interp.ErrSessionClosed
	}

	s.output.Reset()
	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ctx.Err())
	})
	val, err := s.vm.RunScript("playground.js", code)
	if !stop() {
		s.closed.Store(true)
		return "", errors.Wrap(ctx.Err(), "evaluate")
	}
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			s.closed.Store(true)
			return "", errors.Wrap(err, "evaluate")
		}
		return "", toEvalError(err)
	}
	return valueString(val), nil
}

// Output returns what console.log printed during the last Eval.
func (s *Session) Output() string {
	return s.output.String()
}

func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.vm.Interrupt(interp.ErrSessionClosed)
	return nil
}

func valueString(v goja.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// toEvalError converts a goja error raised by script code into
// *interp.EvalError. A thrown undefined or null carries no message.
func toEvalError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		v := exc.Value()
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return &interp.EvalError{}
		}
		return &interp.EvalError{Message: v.String()}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &interp.EvalError{Message: "SyntaxError: " + syntax.Error()}
	}
	return err
}
