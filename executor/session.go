package executor

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero"
)

var (
	ErrSessionClosed = interp.ErrSessionClosed
	ErrSessionBusy   = interp.ErrSessionBusy

	// ErrGuestExited is returned when the interpreter process terminates
	// while a session is starting or evaluating.
	ErrGuestExited = errors.New("interpreter exited")
)

// Session is one long-running interpreter instance. The guest runs the
// language's driver loop: it answers each length-prefixed request on stdin
// with a DONE or ERROR frame on stderr.
type Session struct {
	exec *Executor
	lang Language
	cfg  sessionConfig

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *sessionOutput
	protocol    *sessionProtocol

	cancel  context.CancelFunc
	exited  chan struct{}
	exitErr error

	mu     sync.Mutex
	execMu sync.Mutex
	closed bool
}

var _ interp.Session = (*Session)(nil)

// NewSession instantiates lang and waits until its bootstrap script has run.
// A bootstrap failure reported by the guest is returned as *interp.EvalError
// wrapped with context.
func (e *Executor) NewSession(ctx context.Context, lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	compiled, err := e.Compile(ctx, lang)
	if err != nil {
		return nil, err
	}

	s := &Session{
		exec:     e,
		lang:     lang,
		cfg:      cfg,
		stdout:   newSessionOutput(),
		protocol: newSessionProtocol(),
		exited:   make(chan struct{}),
	}
	s.stdinReader, s.stdin = io.Pipe()

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(lang.Args(lang.SessionInit())...).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")

	if mounts := lang.Mounts(); len(mounts) > 0 {
		fsConfig := wazero.NewFSConfig()
		for _, m := range mounts {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		}
		moduleConfig = moduleConfig.WithFSConfig(fsConfig)
	}

	for k, v := range cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	// The guest outlives the caller's context; Close cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.exited)
		mod, err := e.runtime.InstantiateModule(runCtx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		s.exitErr = err
	}()

	startCtx := ctx
	if cfg.startTimeout > 0 {
		var stop context.CancelFunc
		startCtx, stop = context.WithTimeout(ctx, cfg.startTimeout)
		defer stop()
	}

	start := time.Now()
	select {
	case <-s.protocol.Ready():
		e.log.Debugw("session ready",
			"language", lang.Name(),
			logging.FieldDurationMS, time.Since(start).Milliseconds())
		return s, nil
	case <-s.exited:
		err := s.exitFailure("start session")
		s.Close()
		return nil, err
	case <-startCtx.Done():
		s.Close()
		return nil, errors.Wrap(startCtx.Err(), "start session")
	}
}

// Eval sends code to the guest and waits for its answer. Cancelling ctx
// terminates the guest; the session is closed afterwards.
func (s *Session) Eval(ctx context.Context, code string) (string, error) {
	if !s.execMu.TryLock() {
		return "", ErrSessionBusy
	}
	defer s.execMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.protocol.ResetExec()
	done := s.protocol.Done()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeRequest(s.stdin, code)
	}()

	select {
	case r := <-done:
		if r.failed {
			return "", &interp.EvalError{Message: r.message}
		}
		return r.value, nil
	case err := <-writeErr:
		if err != nil {
			s.Close()
			return "", errors.Wrap(err, "write request")
		}
	case <-s.exited:
		err := s.exitFailure("evaluate")
		s.Close()
		return "", err
	case <-ctx.Done():
		s.Close()
		return "", errors.Wrap(ctx.Err(), "evaluate")
	}

	// The request is written; wait for the answer.
	select {
	case r := <-done:
		if r.failed {
			return "", &interp.EvalError{Message: r.message}
		}
		return r.value, nil
	case <-s.exited:
		err := s.exitFailure("evaluate")
		s.Close()
		return "", err
	case <-ctx.Done():
		s.Close()
		return "", errors.Wrap(ctx.Err(), "evaluate")
	}
}

// Output returns what the guest printed to stdout during the last Eval.
func (s *Session) Output() string {
	return s.stdout.String()
}

// Close terminates the guest and waits for it to exit.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// EOF on stdin ends the driver loop; cancelling stops a busy guest.
	s.stdinReader.Close()
	s.stdin.Close()
	s.cancel()
	<-s.exited

	return nil
}

// exitFailure describes why the guest exited without answering.
func (s *Session) exitFailure(op string) error {
	if msg := s.protocol.Fatal(); msg != "" {
		return errors.Wrap(&interp.EvalError{Message: msg}, op)
	}

	err := errors.Wrap(ErrGuestExited, op)
	if s.exitErr != nil {
		err = errors.WithSecondaryError(err, s.exitErr)
	}
	diag := strings.TrimSpace(s.protocol.Diagnostics() + s.stdout.String())
	if diag != "" {
		err = errors.WithDetail(err, diag)
		err = errors.Wrapf(err, "%s", lastLine(diag))
	}
	return err
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// writeRequest frames code as "<byte length>\n<code>".
func writeRequest(w io.Writer, code string) error {
	var buf bytes.Buffer
	buf.WriteString(strconv.Itoa(len(code)))
	buf.WriteByte('\n')
	buf.WriteString(code)
	_, err := w.Write(buf.Bytes())
	return err
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
