package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/caffeineduck/anchorpad/language/ruby"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"
)

// ErrModuleMissing is returned when a fetched or configured tree does not
// contain the interpreter binary.
var ErrModuleMissing = errors.New("runtime module not found")

// FetchFunc downloads src into the directory dst.
type FetchFunc func(ctx context.Context, src, dst string) error

// Fetcher downloads runtimes into a local cache.
type Fetcher struct {
	cacheDir string
	fetch    FetchFunc
	log      *zap.SugaredLogger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchFunc replaces the go-getter download.
func WithFetchFunc(fn FetchFunc) FetcherOption {
	return func(f *Fetcher) {
		f.fetch = fn
	}
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cacheDir: cacheDir,
		fetch:    getterFetch,
		log:      logging.ComponentLogger("loader"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the extracted release directory for src, downloading it on
// first use. A directory already holding the interpreter is reused.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (string, error) {
	if src.Dir != "" {
		if !hasModule(src.Dir) {
			return "", errors.Wrapf(ErrModuleMissing, "in %s", src.Dir)
		}
		return src.Dir, nil
	}
	if src.URL == "" {
		return "", errors.New("runtime source has neither dir nor url")
	}

	dir := filepath.Join(f.cacheDir, cacheKey(src.URL))
	root := filepath.Join(dir, src.Root)
	if hasModule(root) {
		f.log.Debugw("runtime cached", logging.FieldPath, root)
		return root, nil
	}

	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}
	staging, err := os.MkdirTemp(f.cacheDir, cacheKey(src.URL)+".partial-")
	if err != nil {
		return "", errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	start := time.Now()
	f.log.Infow("fetching runtime", logging.FieldSource, src.URL)

	target := filepath.Join(staging, "runtime")
	if err := f.fetch(ctx, src.getterURL(), target); err != nil {
		return "", errors.Wrapf(err, "fetch %s", src.URL)
	}
	if !hasModule(filepath.Join(target, src.Root)) {
		return "", errors.WithHint(
			errors.Wrapf(ErrModuleMissing, "fetched from %s", src.URL),
			"check runtime.root: it must name the directory that contains usr/local/bin/ruby")
	}

	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrap(err, "clear stale runtime")
	}
	if err := os.Rename(target, dir); err != nil {
		return "", errors.Wrap(err, "install runtime")
	}

	f.log.Infow("runtime fetched",
		logging.FieldPath, root,
		logging.FieldDurationMS, time.Since(start).Milliseconds())
	return root, nil
}

func getterFetch(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Mode:    getter.ClientModeAny,
		Getters: getter.Getters,
	}
	return client.Get()
}

func hasModule(root string) bool {
	info, err := os.Stat(filepath.Join(root, ruby.ModulePath))
	return err == nil && info.Mode().IsRegular()
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}
