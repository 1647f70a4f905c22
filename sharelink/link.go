// Package sharelink builds and reads playground share links.
//
// A link carries the editor text in its code query parameter, compressed
// with the LZ scheme in Encode:
//
//	https://example.com/playground?code=IZA
package sharelink

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// Path is the route that opens a shared snippet.
const Path = "/playground"

// Param is the query parameter holding the encoded snippet.
const Param = "code"

var ErrNoCode = errors.New("link has no code parameter")

// Build returns the share link for code under origin.
func Build(origin, code string) string {
	return strings.TrimRight(origin, "/") + Path + "?" + Param + "=" + Encode(code)
}

// Parse extracts and decodes the snippet from a share link.
func Parse(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parse link")
	}
	values, ok := u.Query()[Param]
	if !ok || len(values) == 0 {
		return "", ErrNoCode
	}
	code, err := Decode(values[0])
	if err != nil {
		return "", errors.WithHint(err, "the link may have been truncated when copied")
	}
	return code, nil
}

// FromQuery decodes the snippet in an already parsed query. A missing
// parameter yields "" and no error.
func FromQuery(q url.Values) (string, error) {
	return Decode(q.Get(Param))
}
