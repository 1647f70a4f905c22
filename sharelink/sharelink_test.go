package sharelink

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Q"},
		{"a", "IZA"},
		{"aaaaaaaaaa", "IY1o"},
		{"hello world", "BYUwNmD2AEDukCcwBMg"},
		{"héllo €", "BYS4NmD2AEg1BEA"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in))

			got, err := Decode(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecodeCorrupt(t *testing.T) {
	for _, in := range []string{"!!!", "B", "IZ", "~~~~"} {
		_, err := Decode(in)
		assert.True(t, errors.Is(err, ErrCorrupt), "input %q: %v", in, err)
	}
}

func TestDecodeTreatsSpaceAsPlus(t *testing.T) {
	code := strings.Repeat("class Foo < Anchor::Types::Object\nend\n", 20)
	enc := Encode(code)
	require.Contains(t, enc, "+", "payload should exercise '+'")

	got, err := Decode(strings.ReplaceAll(enc, "+", " "))
	require.NoError(t, err)
	assert.Equal(t, code, got)
}

func TestBuildAndParse(t *testing.T) {
	link := Build("https://anchor.example/", "puts 1")
	assert.True(t, strings.HasPrefix(link, "https://anchor.example/playground?code="))

	got, err := Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "puts 1", got)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("https://anchor.example/playground")
	assert.True(t, errors.Is(err, ErrNoCode))

	_, err = Parse("https://anchor.example/playground?code=!!")
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = Parse("://bad")
	assert.Error(t, err)
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode inverts encode", prop.ForAll(
		func(s string) bool {
			got, err := Decode(Encode(s))
			return err == nil && got == s
		},
		gen.AnyString().SuchThat(utf8.ValidString),
	))

	properties.Property("links survive query parsing", prop.ForAll(
		func(s string) bool {
			got, err := Parse(Build("http://localhost:8080", s))
			return err == nil && got == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
