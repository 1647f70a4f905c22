package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/cockroachdb/errors"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	exec, err := New()
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestSessionExitsBeforeReady(t *testing.T) {
	exec := newTestExecutor(t)

	_, err := exec.NewSession(context.Background(), newMinimalLanguage("minimal"))
	if !errors.Is(err, ErrGuestExited) {
		t.Fatalf("expected ErrGuestExited, got %v", err)
	}
}

func TestModuleAdapter(t *testing.T) {
	m, err := Load(context.Background(), newMinimalLanguage("minimal"), nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Name() != "minimal" {
		t.Errorf("name = %q", m.Name())
	}

	if _, err := m.NewSession(context.Background()); err == nil {
		t.Error("expected session start to fail for a module without a driver")
	}

	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := m.exec.Compile(context.Background(), m.lang); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("expected owned executor to be closed, got %v", err)
	}
}

func TestModuleDoesNotCloseSharedExecutor(t *testing.T) {
	exec := newTestExecutor(t)

	m, err := exec.Module(context.Background(), newMinimalLanguage("minimal"))
	if err != nil {
		t.Fatalf("module failed: %v", err)
	}
	m.Close(context.Background())

	if _, err := exec.Compile(context.Background(), newMinimalLanguage("other")); err != nil {
		t.Errorf("shared executor closed by module: %v", err)
	}
}

func TestWriteRequest(t *testing.T) {
	var b strings.Builder
	if err := writeRequest(&b, "héllo"); err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "6\nhéllo" {
		t.Errorf("request = %q", got)
	}
}

// The tests below need testdata/mock.wasm.

func TestMockSessionEval(t *testing.T) {
	lang := loadMockLanguage(t)
	exec := newTestExecutor(t)

	s, err := exec.NewSession(context.Background(), lang)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	defer s.Close()

	out, err := s.Eval(context.Background(), "type A = string;")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if out != "type A = string;" {
		t.Errorf("value = %q", out)
	}
	if s.Output() != "echo" {
		t.Errorf("stdout = %q", s.Output())
	}

	_, err = s.Eval(context.Background(), "raise boom")
	var evalErr *interp.EvalError
	if !errors.As(err, &evalErr) || evalErr.Message != "boom" {
		t.Fatalf("expected EvalError boom, got %v", err)
	}

	// The session survives an evaluation error.
	if _, err := s.Eval(context.Background(), "again"); err != nil {
		t.Fatalf("eval after error failed: %v", err)
	}
}

func TestMockSessionGuestExit(t *testing.T) {
	lang := loadMockLanguage(t)
	exec := newTestExecutor(t)

	s, err := exec.NewSession(context.Background(), lang)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	_, err = s.Eval(context.Background(), "exit")
	if !errors.Is(err, ErrGuestExited) {
		t.Fatalf("expected ErrGuestExited, got %v", err)
	}
	if _, err := s.Eval(context.Background(), "x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestMockSessionTimeout(t *testing.T) {
	lang := loadMockLanguage(t)
	exec := newTestExecutor(t)

	s, err := exec.NewSession(context.Background(), lang, WithSessionTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	defer s.Close()

	start := time.Now()
	_, err = s.Eval(context.Background(), "spin")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestMockSessionFatalBootstrap(t *testing.T) {
	lang := loadMockLanguage(t)
	exec := newTestExecutor(t)

	_, err := exec.NewSession(context.Background(), lang, WithEnv("MOCK_FATAL", "NameError: Anchor"))
	var evalErr *interp.EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %v", err)
	}
	if evalErr.Message != "NameError: Anchor" {
		t.Errorf("message = %q", evalErr.Message)
	}
}
