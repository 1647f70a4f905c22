// Package loader resolves and compiles interpreter runtimes.
//
// [Ruby] fetches a ruby.wasm release (hashicorp/go-getter), compiles it with
// the executor and returns it as an interp.Module. [Shared] wraps any
// interp.Loader so that every playground in a process shares one compiled
// module.
package loader

import (
	"context"
	"sync"

	"github.com/caffeineduck/anchorpad/executor"
	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/language/ruby"
	"golang.org/x/sync/singleflight"
)

// Ruby loads the WASI Ruby runtime.
type Ruby struct {
	Fetcher         *Fetcher
	Source          Source
	Config          interp.SerializerConfig
	ExecutorOptions []executor.ExecutorOption
	SessionOptions  []executor.SessionOption
}

var _ interp.Loader = (*Ruby)(nil)

func (r *Ruby) Load(ctx context.Context) (interp.Module, error) {
	root, err := r.Fetcher.Fetch(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	lang, err := ruby.Open(root, r.Config)
	if err != nil {
		return nil, err
	}
	m, err := executor.Load(ctx, lang, r.ExecutorOptions, r.SessionOptions...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Shared coalesces concurrent loads and caches the first success for the
// life of the process. Failures are not cached, so a later Load retries.
type Shared struct {
	loader interp.Loader
	group  singleflight.Group

	mu     sync.Mutex
	module interp.Module
}

var _ interp.Loader = (*Shared)(nil)

// NewShared wraps l.
func NewShared(l interp.Loader) *Shared {
	return &Shared{loader: l}
}

// Load returns the shared module. The returned handle's Close is a no-op;
// the module is released by Shared.Close.
func (s *Shared) Load(ctx context.Context) (interp.Module, error) {
	if m := s.cached(); m != nil {
		return sharedModule{m}, nil
	}

	ch := s.group.DoChan("load", func() (any, error) {
		if m := s.cached(); m != nil {
			return m, nil
		}
		// One caller giving up must not fail the others waiting on this load.
		m, err := s.loader.Load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.module = m
		s.mu.Unlock()
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return sharedModule{res.Val.(interp.Module)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether a module is cached.
func (s *Shared) Loaded() bool {
	return s.cached() != nil
}

// Close releases the cached module.
func (s *Shared) Close(ctx context.Context) error {
	s.mu.Lock()
	m := s.module
	s.module = nil
	s.mu.Unlock()

	if m == nil {
		return nil
	}
	return m.Close(ctx)
}

func (s *Shared) cached() interp.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module
}

type sharedModule struct {
	interp.Module
}

func (sharedModule) Close(context.Context) error {
	return nil
}
