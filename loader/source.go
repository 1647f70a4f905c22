package loader

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
)

// Defaults for the Ruby runtime release.
const (
	DefaultRubyVersion    = "3.4"
	DefaultReleaseVersion = "2.7.1"
)

const releaseURL = "https://github.com/ruby/ruby.wasm/releases/download/%s/%s.tar.gz"

// Source says where a runtime comes from.
type Source struct {
	// Dir is an already extracted release. When set nothing is fetched.
	Dir string

	// URL is any go-getter source; archives are extracted.
	URL string

	// Checksum is verified by go-getter, e.g. "sha256:ab12...".
	Checksum string

	// Root is the directory inside the fetched tree that holds usr/.
	Root string
}

// DefaultSource returns the ruby.wasm "full" WASI build for the given Ruby
// minor version and ruby.wasm release.
func DefaultSource(rubyVersion, releaseVersion string) (Source, error) {
	if _, err := semver.NewVersion(rubyVersion); err != nil {
		return Source{}, errors.Wrapf(err, "invalid ruby version %q", rubyVersion)
	}
	release, err := semver.NewVersion(releaseVersion)
	if err != nil {
		return Source{}, errors.Wrapf(err, "invalid ruby.wasm release %q", releaseVersion)
	}

	name := fmt.Sprintf("ruby-%s-wasm32-unknown-wasip1-full", rubyVersion)
	return Source{
		URL:  fmt.Sprintf(releaseURL, release.Original(), name),
		Root: name,
	}, nil
}

// getterURL returns URL with the checksum query go-getter understands.
func (s Source) getterURL() string {
	if s.Checksum == "" {
		return s.URL
	}
	sep := "?"
	if strings.Contains(s.URL, "?") {
		sep = "&"
	}
	return s.URL + sep + "checksum=" + s.Checksum
}
