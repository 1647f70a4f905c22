package executor

import (
	"context"

	"github.com/caffeineduck/anchorpad/interp"
)

// Module adapts a compiled Language to interp.Module.
type Module struct {
	exec     *Executor
	lang     Language
	opts     []SessionOption
	ownsExec bool
}

var _ interp.Module = (*Module)(nil)

// Module compiles lang and returns it as an interp.Module backed by e.
// Closing the returned Module leaves e open.
func (e *Executor) Module(ctx context.Context, lang Language, opts ...SessionOption) (*Module, error) {
	if _, err := e.Compile(ctx, lang); err != nil {
		return nil, err
	}
	return &Module{exec: e, lang: lang, opts: opts}, nil
}

// Load creates a dedicated Executor, compiles lang on it and returns the
// result as an interp.Module. Closing the Module closes the Executor.
func Load(ctx context.Context, lang Language, execOpts []ExecutorOption, sessOpts ...SessionOption) (*Module, error) {
	e, err := New(execOpts...)
	if err != nil {
		return nil, err
	}
	m, err := e.Module(ctx, lang, sessOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	m.ownsExec = true
	return m, nil
}

func (m *Module) Name() string {
	return m.lang.Name()
}

func (m *Module) NewSession(ctx context.Context) (interp.Session, error) {
	s, err := m.exec.NewSession(ctx, m.lang, m.opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Module) Close(ctx context.Context) error {
	if m.ownsExec {
		return m.exec.Close()
	}
	return nil
}
