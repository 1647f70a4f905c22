// Package ruby drives a WASI build of CRuby as an executor.Language.
//
// The interpreter image is not embedded; it comes from an extracted
// ruby.wasm release (see the loader package). The bootstrap script defines
// the Anchor type vocabulary and its TypeScript serializer, then hands
// control to a driver loop that evaluates each request at the top level.
package ruby

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/anchorpad/executor"
	"github.com/caffeineduck/anchorpad/interp"
	"github.com/cockroachdb/errors"
)

//go:embed anchor.rb
var anchorSource string

//go:embed driver.rb
var driverSource string

// Example is the Exhaustive snippet shown in a fresh editor.
//
//go:embed example.rb
var Example string

// ModulePath is where the interpreter binary sits inside an extracted
// ruby.wasm release.
const ModulePath = "usr/local/bin/ruby"

// Ruby implements executor.Language.
type Ruby struct {
	root string
	bin  []byte
	cfg  interp.SerializerConfig
}

var _ executor.Language = (*Ruby)(nil)

// New returns a Ruby language for the given module bytes. root is the
// extracted release directory whose usr tree is mounted for the stdlib; it
// may be empty when no stdlib is needed.
func New(root string, bin []byte, cfg interp.SerializerConfig) *Ruby {
	return &Ruby{root: root, bin: bin, cfg: cfg}
}

// Open reads the interpreter from an extracted release directory.
func Open(root string, cfg interp.SerializerConfig) (*Ruby, error) {
	bin, err := os.ReadFile(filepath.Join(root, ModulePath))
	if err != nil {
		return nil, errors.Wrapf(err, "read ruby module in %s", root)
	}
	return New(root, bin, cfg), nil
}

func (r *Ruby) Name() string {
	return "ruby"
}

func (r *Ruby) Module() []byte {
	return r.bin
}

func (r *Ruby) Args(script string) []string {
	return []string{"ruby", "--disable-gems", "-e", script}
}

func (r *Ruby) SessionInit() string {
	return Bootstrap(r.cfg)
}

func (r *Ruby) Mounts() []executor.Mount {
	if r.root == "" {
		return nil
	}
	usr := filepath.Join(r.root, "usr")
	if info, err := os.Stat(usr); err != nil || !info.IsDir() {
		return nil
	}
	return []executor.Mount{{GuestPath: "/usr", HostPath: usr}}
}

// Vocabulary returns the Anchor vocabulary with Anchor.config set from cfg.
func Vocabulary(cfg interp.SerializerConfig) string {
	var b strings.Builder
	b.WriteString(anchorSource)
	fmt.Fprintf(&b, `
module Anchor
  Config = Struct.new(:array_bracket_notation, :maybe_as_union)

  def self.config
    @config ||= Config.new(%t, %t)
  end
end

module T
  include Anchor::Types
end
`, cfg.ArrayBracketNotation, cfg.MaybeAsUnion)
	return b.String()
}

// Bootstrap returns the complete -e script: the vocabulary held in a
// constant, followed by the driver that evaluates it and serves requests.
func Bootstrap(cfg interp.SerializerConfig) string {
	var b strings.Builder
	b.WriteString("ANCHOR_BOOTSTRAP = <<'ANCHOR_BOOTSTRAP_END'\n")
	b.WriteString(Vocabulary(cfg))
	b.WriteString("ANCHOR_BOOTSTRAP_END\n\n")
	b.WriteString(driverSource)
	return b.String()
}
