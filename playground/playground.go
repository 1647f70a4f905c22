// Package playground orchestrates interpreter lifecycles for an editor.
//
// A Playground loads a module once, keeps one bootstrapped session ready,
// and spends it on the next evaluation. After every evaluation the used
// session is closed and a replacement is built in the background, so no
// definitions leak from one evaluation into the next.
//
//	pending ──Initiate──▶ loading ──▶ success
//	                         │
//	                         └──────▶ error ──Initiate (retry)──▶ loading
//
// Evaluation failures never change the status.
package playground

import (
	"context"
	"sync"
	"time"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Playground is one editor's view of an interpreter.
type Playground struct {
	loader    interp.Loader
	cfg       config
	log       *zap.SugaredLogger
	debouncer *Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	status     Status
	loadErr    error
	loadDone   chan struct{}
	module     interp.Module
	session    interp.Session
	rebuilding chan struct{}
	hooks      []Status
	closed     bool

	// hookMu is held by the goroutine delivering status notifications.
	hookMu sync.Mutex

	// evalSem serializes evaluations.
	evalSem chan struct{}
}

// New returns a pending Playground that will load its module from loader.
func New(loader interp.Loader, opts ...Option) *Playground {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logging.ComponentLogger("playground")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Playground{
		loader:  loader,
		cfg:     cfg,
		log:     cfg.log,
		ctx:     ctx,
		cancel:  cancel,
		status:  StatusPending,
		evalSem: make(chan struct{}, 1),
	}
	p.debouncer = NewDebouncer(cfg.clock, cfg.debounce, cfg.maxWait, p.debounced)
	return p
}

// Status returns the current lifecycle status.
func (p *Playground) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LoadErr returns the cause of the last failed load, marked with
// ErrLoadFailure, or nil.
func (p *Playground) LoadErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Initiate starts loading. It is allowed from pending, and from error when
// retry is enabled. It returns immediately; use Await or the status handler
// to learn the result.
func (p *Playground) Initiate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	switch {
	case p.status == StatusPending:
	case p.status == StatusError && p.cfg.retry:
	default:
		from := p.status
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "initiate from %s", from)
	}

	p.loadErr = nil
	done := make(chan struct{})
	p.loadDone = done
	p.wg.Add(1)
	go p.load(done)
	p.transitionLocked(StatusLoading)
	return nil
}

// Await blocks until loading finishes. It returns nil on success, the load
// error on failure, and ErrNotReady if Initiate was never called.
func (p *Playground) Await(ctx context.Context) error {
	p.mu.Lock()
	status, done := p.status, p.loadDone
	p.mu.Unlock()

	if status == StatusPending {
		return ErrNotReady
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.status == StatusError {
		return p.loadErr
	}
	return nil
}

func (p *Playground) load(done chan struct{}) {
	defer p.wg.Done()

	ctx := p.ctx
	if p.cfg.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	mod, err := p.loader.Load(ctx)
	var sess interp.Session
	if err == nil {
		sess, err = mod.NewSession(ctx)
		if err != nil {
			mod.Close(context.Background())
			mod = nil
			err = errors.Wrap(err, "bootstrap")
		}
	}

	p.mu.Lock()
	defer close(done)
	if p.closed {
		p.mu.Unlock()
		if sess != nil {
			sess.Close()
		}
		if mod != nil {
			mod.Close(context.Background())
		}
		return
	}

	if err != nil {
		p.loadErr = errors.Mark(err, ErrLoadFailure)
		p.log.Warnw("load failed",
			logging.FieldError, err.Error(),
			logging.FieldDurationMS, time.Since(start).Milliseconds())
		p.transitionLocked(StatusError)
		return
	}

	p.module = mod
	p.session = sess
	p.log.Infow("interpreter ready",
		logging.FieldEngine, mod.Name(),
		logging.FieldDurationMS, time.Since(start).Milliseconds())
	p.transitionLocked(StatusSuccess)
}

// transitionLocked sets the status, releases p.mu and delivers pending
// status notifications in transition order.
func (p *Playground) transitionLocked(to Status) {
	p.status = to
	p.hooks = append(p.hooks, to)
	p.mu.Unlock()

	p.log.Debugw("status changed", logging.FieldStatus, to.String())
	p.drainHooks()
}

// drainHooks runs queued status notifications. Only one goroutine drains
// at a time; a transition that finds the drainer busy leaves its entry for
// it.
func (p *Playground) drainHooks() {
	for {
		if !p.hookMu.TryLock() {
			return
		}
		for {
			p.mu.Lock()
			if len(p.hooks) == 0 {
				p.mu.Unlock()
				break
			}
			next := p.hooks[0]
			p.hooks = p.hooks[1:]
			p.mu.Unlock()

			if p.cfg.onStatus != nil {
				p.cfg.onStatus(next)
			}
		}
		p.hookMu.Unlock()

		p.mu.Lock()
		empty := len(p.hooks) == 0
		p.mu.Unlock()
		if empty {
			return
		}
	}
}

// Evaluate runs text in a fresh session. It returns ErrNotReady unless the
// status is success. Interpreter failures are reported in the Outcome, not
// as an error. Concurrent calls run one at a time; a call that arrives while
// the replacement session is still being built waits for it.
func (p *Playground) Evaluate(ctx context.Context, text string) (Outcome, error) {
	select {
	case p.evalSem <- struct{}{}:
	case <-ctx.Done():
		return Failure(""), ctx.Err()
	}
	defer func() { <-p.evalSem }()

	sess, err := p.takeSession(ctx)
	if err != nil {
		return Failure(""), err
	}
	if sess == nil {
		// The background rebuild failed; build inline.
		sess, err = p.newSession(ctx)
		if err != nil {
			p.log.Warnw("session rebuild failed", logging.FieldError, err.Error())
			return Failure(err.Error()), nil
		}
	}

	evalCtx := ctx
	if p.cfg.evalTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, p.cfg.evalTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := sess.Eval(evalCtx, text)
	sess.Close()
	p.rebuild()

	if err != nil {
		p.log.Debugw("evaluation failed",
			logging.FieldError, err.Error(),
			logging.FieldSize, len(text),
			logging.FieldDurationMS, time.Since(start).Milliseconds())

		var evalErr *interp.EvalError
		if errors.As(err, &evalErr) {
			return Failure(evalErr.Message), nil
		}
		return Failure(err.Error()), nil
	}

	p.log.Debugw("evaluated",
		logging.FieldSize, len(text),
		logging.FieldDurationMS, time.Since(start).Milliseconds())
	return Success(value), nil
}

// takeSession removes the ready session from the playground, waiting for a
// rebuild in progress. It returns nil, nil when no session could be built.
func (p *Playground) takeSession(ctx context.Context) (interp.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.status != StatusSuccess {
		status := p.status
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrNotReady, "status %s", status)
	}
	sess, rebuilding := p.session, p.rebuilding
	p.session = nil
	p.mu.Unlock()

	if sess != nil || rebuilding == nil {
		return sess, nil
	}

	select {
	case <-rebuilding:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	sess = p.session
	p.session = nil
	return sess, nil
}

func (p *Playground) newSession(ctx context.Context) (interp.Session, error) {
	p.mu.Lock()
	mod, closed := p.module, p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if p.cfg.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.loadTimeout)
		defer cancel()
	}
	sess, err := mod.NewSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "rebuild session")
	}
	return sess, nil
}

// rebuild builds the next session in the background. The new session is
// installed only once fully bootstrapped; any session it replaces is closed
// after the swap.
func (p *Playground) rebuild() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	done := make(chan struct{})
	p.rebuilding = done
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		sess, err := p.newSession(p.ctx)

		p.mu.Lock()
		defer p.mu.Unlock()
		defer close(done)
		if p.rebuilding == done {
			p.rebuilding = nil
		}

		if err != nil {
			if !p.closed {
				p.log.Warnw("session rebuild failed", logging.FieldError, err.Error())
			}
			return
		}
		if p.closed {
			sess.Close()
			return
		}

		old := p.session
		p.session = sess
		if old != nil {
			old.Close()
		}
	}()
}

// DebouncedEvaluate schedules an evaluation of text once edits go quiet.
// A newer call supersedes a pending one. The outcome goes to the OnOutcome
// handler.
func (p *Playground) DebouncedEvaluate(text string) {
	p.debouncer.Call(text)
}

// CancelDebounced drops a scheduled evaluation that has not started.
func (p *Playground) CancelDebounced() {
	p.debouncer.Cancel()
}

func (p *Playground) debounced(text string) {
	outcome, err := p.Evaluate(p.ctx, text)
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		p.log.Debugw("debounced evaluation skipped", logging.FieldError, err.Error())
	}
	if p.cfg.onOutcome != nil {
		p.cfg.onOutcome(outcome)
	}
}

// Close stops pending work and releases the session and module. It is safe
// to call more than once.
func (p *Playground) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancel()
	p.mu.Unlock()

	p.debouncer.Stop()
	p.wg.Wait()

	p.mu.Lock()
	sess, mod := p.session, p.module
	p.session, p.module = nil, nil
	p.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	if mod != nil {
		return mod.Close(context.Background())
	}
	return nil
}
