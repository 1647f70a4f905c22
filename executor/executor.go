package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// ErrExecutorClosed is returned when compiling or starting sessions on a
// closed Executor.
var ErrExecutorClosed = errors.New("executor closed")

// Executor manages the wazero runtime and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	log      *zap.SugaredLogger
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, errors.Wrap(err, "create disk cache")
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, errors.Wrap(err, "instantiate WASI")
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		log:      logging.ComponentLogger("executor"),
	}

	for _, lang := range cfg.precompile {
		if _, err := e.Compile(ctx, lang); err != nil {
			e.Close()
			return nil, errors.Wrapf(err, "precompile %s", lang.Name())
		}
	}

	return e, nil
}

// Compile returns the cached compiled module for lang, compiling it on
// first use.
func (e *Executor) Compile(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	bin := lang.Module()
	if len(bin) == 0 {
		return nil, errors.Newf("compile %s: empty module binary", name)
	}

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s", name)
	}

	e.log.Debugw("compiled module", "language", name, logging.FieldSize, len(bin))
	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "anchorpad", "wazero")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "anchorpad", "wazero")
	}
	return filepath.Join(os.TempDir(), "anchorpad-wazero")
}
