package ruby

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caffeineduck/anchorpad/executor"
	"github.com/caffeineduck/anchorpad/interp"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapLayout(t *testing.T) {
	script := Bootstrap(interp.SerializerConfig{ArrayBracketNotation: true})

	assert.True(t, strings.HasPrefix(script, "ANCHOR_BOOTSTRAP = <<'ANCHOR_BOOTSTRAP_END'\n"))
	assert.Contains(t, script, "\nANCHOR_BOOTSTRAP_END\n")
	assert.Contains(t, script, "Config.new(true, false)")
	assert.Contains(t, script, "module TypeScript")
	assert.Contains(t, script, `__anchor_frame("READY", "")`)

	// The heredoc terminator must not appear inside the vocabulary.
	assert.Equal(t, 1, strings.Count(Vocabulary(interp.SerializerConfig{}), "Config.new(false, false)"))
	assert.NotContains(t, Vocabulary(interp.SerializerConfig{}), "ANCHOR_BOOTSTRAP_END")
}

func TestArgs(t *testing.T) {
	r := New("", nil, interp.SerializerConfig{})
	assert.Equal(t, []string{"ruby", "--disable-gems", "-e", "1"}, r.Args("1"))
	assert.Equal(t, "ruby", r.Name())
}

func TestMounts(t *testing.T) {
	assert.Nil(t, New("", nil, interp.SerializerConfig{}).Mounts())

	root := t.TempDir()
	assert.Nil(t, New(root, nil, interp.SerializerConfig{}).Mounts())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "local", "lib"), 0o755))
	mounts := New(root, nil, interp.SerializerConfig{}).Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, "/usr", mounts[0].GuestPath)
	assert.Equal(t, filepath.Join(root, "usr"), mounts[0].HostPath)
}

func TestOpenMissingModule(t *testing.T) {
	_, err := Open(t.TempDir(), interp.SerializerConfig{})
	assert.Error(t, err)
}

func TestExampleIsExhaustive(t *testing.T) {
	assert.Contains(t, Example, "class Exhaustive < T::Object")
	assert.Contains(t, Example, `"type Exhaustive = #{expression};"`)
}

// The tests below run the real interpreter. Point ANCHORPAD_RUBY_WASM_DIR
// at an extracted ruby.wasm release (anchorpad fetch prints the path).

func rubyDir(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("ANCHORPAD_RUBY_WASM_DIR")
	if dir == "" {
		t.Skip("ANCHORPAD_RUBY_WASM_DIR not set")
	}
	return dir
}

func openSession(t *testing.T, cfg interp.SerializerConfig) *executor.Session {
	t.Helper()
	lang, err := Open(rubyDir(t), cfg)
	require.NoError(t, err)

	exec, err := executor.New(executor.WithDiskCache())
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	s, err := exec.NewSession(context.Background(), lang)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRubyExhaustive(t *testing.T) {
	s := openSession(t, interp.SerializerConfig{})

	want, err := os.ReadFile(filepath.Join("..", "testdata", "exhaustive.ts"))
	require.NoError(t, err)

	got, err := s.Eval(context.Background(), Example)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(want)), got)
}

func TestRubySerializerConfig(t *testing.T) {
	s := openSession(t, interp.SerializerConfig{ArrayBracketNotation: true, MaybeAsUnion: true})

	got, err := s.Eval(context.Background(),
		`Anchor::TypeScript::Serializer.type_string(T::Array.new(T::Maybe.new(T::String)))`)
	require.NoError(t, err)
	assert.Equal(t, "(string | null)[]", got)
}

func TestRubySyntaxError(t *testing.T) {
	s := openSession(t, interp.SerializerConfig{})

	_, err := s.Eval(context.Background(), "class Broken <")
	var evalErr *interp.EvalError
	require.True(t, errors.As(err, &evalErr), "got %v", err)
	assert.Contains(t, evalErr.Message, "SyntaxError")

	// A syntax error does not kill the session.
	got, err := s.Eval(context.Background(), "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}
