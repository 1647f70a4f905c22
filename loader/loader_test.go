package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/language/ruby"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSource(t *testing.T) {
	src, err := DefaultSource("3.4", "2.7.1")
	require.NoError(t, err)
	assert.Equal(t,
		"https://github.com/ruby/ruby.wasm/releases/download/2.7.1/ruby-3.4-wasm32-unknown-wasip1-full.tar.gz",
		src.URL)
	assert.Equal(t, "ruby-3.4-wasm32-unknown-wasip1-full", src.Root)

	_, err = DefaultSource("three", "2.7.1")
	assert.Error(t, err)
	_, err = DefaultSource("3.4", "latest")
	assert.Error(t, err)
}

func TestGetterURL(t *testing.T) {
	assert.Equal(t, "https://x/r.tar.gz", Source{URL: "https://x/r.tar.gz"}.getterURL())
	assert.Equal(t, "https://x/r.tar.gz?checksum=sha256:ab",
		Source{URL: "https://x/r.tar.gz", Checksum: "sha256:ab"}.getterURL())
	assert.Equal(t, "https://x/r?archive=tar.gz&checksum=sha256:ab",
		Source{URL: "https://x/r?archive=tar.gz", Checksum: "sha256:ab"}.getterURL())
}

func writeModule(t *testing.T, root string) {
	t.Helper()
	path := filepath.Join(root, ruby.ModulePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("\x00asm\x01\x00\x00\x00"), 0o644))
}

func TestFetchCachesDownloads(t *testing.T) {
	var calls atomic.Int32
	fake := func(ctx context.Context, src, dst string) error {
		calls.Add(1)
		writeModule(t, filepath.Join(dst, "release"))
		return nil
	}

	f := NewFetcher(t.TempDir(), WithFetchFunc(fake))
	src := Source{URL: "https://example.com/ruby.tar.gz", Root: "release"}

	root, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, ruby.ModulePath))

	again, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, root, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchMissingModule(t *testing.T) {
	cache := t.TempDir()
	fake := func(ctx context.Context, src, dst string) error {
		return os.MkdirAll(dst, 0o755)
	}

	f := NewFetcher(cache, WithFetchFunc(fake))
	_, err := f.Fetch(context.Background(), Source{URL: "https://example.com/empty.tar.gz"})
	assert.True(t, errors.Is(err, ErrModuleMissing))

	// Staging directories do not survive a failed fetch.
	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchError(t *testing.T) {
	boom := errors.New("network down")
	f := NewFetcher(t.TempDir(), WithFetchFunc(func(context.Context, string, string) error {
		return boom
	}))
	_, err := f.Fetch(context.Background(), Source{URL: "https://example.com/r.tar.gz"})
	assert.True(t, errors.Is(err, boom))
}

func TestFetchLocalDir(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher(t.TempDir(), WithFetchFunc(func(context.Context, string, string) error {
		t.Fatal("local dir must not be fetched")
		return nil
	}))

	_, err := f.Fetch(context.Background(), Source{Dir: dir})
	assert.True(t, errors.Is(err, ErrModuleMissing))

	writeModule(t, dir)
	root, err := f.Fetch(context.Background(), Source{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, root)

	_, err = f.Fetch(context.Background(), Source{})
	assert.Error(t, err)
}

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFetchWithGoGetter(t *testing.T) {
	archive := tarball(t, map[string]string{
		"release/" + ruby.ModulePath: "\x00asm\x01\x00\x00\x00",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(archive)
	}))
	defer srv.Close()

	sum := sha256.Sum256(archive)
	src := Source{
		URL:      srv.URL + "/ruby.tar.gz",
		Checksum: "sha256:" + hex.EncodeToString(sum[:]),
		Root:     "release",
	}

	root, err := NewFetcher(t.TempDir()).Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, ruby.ModulePath))

	src.Checksum = "sha256:" + hex.EncodeToString(make([]byte, 32))
	_, err = NewFetcher(t.TempDir()).Fetch(context.Background(), src)
	assert.Error(t, err)
}

func TestRubyLoaderFromDir(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir)

	l := &Ruby{Fetcher: NewFetcher(t.TempDir()), Source: Source{Dir: dir}}
	m, err := l.Load(context.Background())
	require.NoError(t, err)
	defer m.Close(context.Background())
	assert.Equal(t, "ruby", m.Name())
}

// countingLoader counts loads and fails while fail is set.
type countingLoader struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

type stubModule struct {
	closed atomic.Bool
}

func (m *stubModule) Name() string { return "stub" }
func (m *stubModule) NewSession(context.Context) (interp.Session, error) {
	return nil, errors.New("not implemented")
}
func (m *stubModule) Close(context.Context) error {
	m.closed.Store(true)
	return nil
}

func (l *countingLoader) Load(ctx context.Context) (interp.Module, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	if l.fail.Load() {
		return nil, errors.New("load failed")
	}
	return &stubModule{}, nil
}

func TestSharedCoalescesConcurrentLoads(t *testing.T) {
	inner := &countingLoader{delay: 50 * time.Millisecond}
	shared := NewShared(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := shared.Load(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, m)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.True(t, shared.Loaded())

	_, err := shared.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestSharedDoesNotCacheFailure(t *testing.T) {
	inner := &countingLoader{}
	inner.fail.Store(true)
	shared := NewShared(inner)

	_, err := shared.Load(context.Background())
	require.Error(t, err)
	assert.False(t, shared.Loaded())

	inner.fail.Store(false)
	_, err = shared.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestSharedCloseOwnsModule(t *testing.T) {
	shared := NewShared(&countingLoader{})

	m, err := shared.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background()))

	inner := shared.cached().(*stubModule)
	assert.False(t, inner.closed.Load(), "handle Close must not close the shared module")

	require.NoError(t, shared.Close(context.Background()))
	assert.True(t, inner.closed.Load())
	assert.False(t, shared.Loaded())
}

func TestSharedLoadHonoursContext(t *testing.T) {
	shared := NewShared(&countingLoader{delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := shared.Load(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
