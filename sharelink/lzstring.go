package sharelink

import (
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
)

// uriAlphabet maps 6-bit values to characters that survive a query string.
const uriAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"

const bitsPerChar = 6

var ErrCorrupt = errors.New("corrupt share payload")

var uriIndex = func() map[byte]int {
	m := make(map[byte]int, len(uriAlphabet))
	for i := 0; i < len(uriAlphabet); i++ {
		m[uriAlphabet[i]] = i
	}
	return m
}()

// Encode compresses s into the URI-safe LZ form used by share links. The
// output is compatible with lz-string's compressToEncodedURIComponent.
func Encode(s string) string {
	w := &bitWriter{}
	units := utf16.Encode([]rune(s))

	dict := map[string]int{}
	toCreate := map[string]bool{}
	enlargeIn, dictSize, numBits := 2, 3, 2
	var cur string

	grow := func() {
		enlargeIn--
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}

	emit := func(key string) {
		if toCreate[key] {
			first := keyUnit(key)
			if first < 256 {
				w.write(0, numBits)
				w.write(int(first), 8)
			} else {
				w.write(1, numBits)
				w.write(int(first), 16)
			}
			grow()
			delete(toCreate, key)
		} else {
			w.write(dict[key], numBits)
		}
		grow()
	}

	for _, u := range units {
		c := unitKey(u)
		if _, ok := dict[c]; !ok {
			dict[c] = dictSize
			dictSize++
			toCreate[c] = true
		}
		wc := cur + c
		if _, ok := dict[wc]; ok {
			cur = wc
			continue
		}
		emit(cur)
		dict[wc] = dictSize
		dictSize++
		cur = c
	}
	if cur != "" {
		emit(cur)
	}

	w.write(2, numBits)
	return w.finish()
}

// Decode reverses Encode. Spaces are read as '+', since query parsing
// turns an unescaped '+' into a space.
func Decode(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	s = strings.ReplaceAll(s, " ", "+")
	r := &bitReader{src: s}

	dict := make([][]uint16, 3)
	enlargeIn, numBits := 4, 3

	var first []uint16
	next, err := r.read(2)
	if err != nil {
		return "", err
	}
	switch next {
	case 0, 1:
		width := 8
		if next == 1 {
			width = 16
		}
		v, err := r.read(width)
		if err != nil {
			return "", err
		}
		first = []uint16{uint16(v)}
	case 2:
		return "", nil
	default:
		return "", errors.Wrap(ErrCorrupt, "bad header")
	}
	dict = append(dict, first)
	w := first
	out := append([]uint16(nil), first...)

	for {
		c, err := r.read(numBits)
		if err != nil {
			return "", err
		}
		switch c {
		case 0, 1:
			width := 8
			if c == 1 {
				width = 16
			}
			v, err := r.read(width)
			if err != nil {
				return "", err
			}
			dict = append(dict, []uint16{uint16(v)})
			c = len(dict) - 1
			enlargeIn--
		case 2:
			return string(utf16.Decode(out)), nil
		}
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}

		var entry []uint16
		switch {
		case c >= 3 && c < len(dict):
			entry = dict[c]
		case c == len(dict):
			entry = append(append([]uint16(nil), w...), w[0])
		default:
			return "", errors.Wrapf(ErrCorrupt, "unknown code %d", c)
		}
		out = append(out, entry...)

		dict = append(dict, append(append([]uint16(nil), w...), entry[0]))
		enlargeIn--
		w = entry
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
}

// unitKey packs one UTF-16 unit into a two-byte map key.
func unitKey(u uint16) string {
	return string([]byte{byte(u >> 8), byte(u)})
}

func keyUnit(key string) uint16 {
	return uint16(key[0])<<8 | uint16(key[1])
}

// bitWriter packs values least significant bit first into 6-bit characters.
type bitWriter struct {
	out strings.Builder
	val int
	pos int
}

func (w *bitWriter) write(value, bits int) {
	for i := 0; i < bits; i++ {
		w.val = w.val<<1 | value&1
		value >>= 1
		w.advance()
	}
}

func (w *bitWriter) advance() {
	if w.pos == bitsPerChar-1 {
		w.out.WriteByte(uriAlphabet[w.val])
		w.pos = 0
		w.val = 0
		return
	}
	w.pos++
}

// finish pads the last character with zero bits.
func (w *bitWriter) finish() string {
	for {
		w.val <<= 1
		if w.pos == bitsPerChar-1 {
			w.out.WriteByte(uriAlphabet[w.val])
			return w.out.String()
		}
		w.pos++
	}
}

// bitReader reads bits most significant first out of each character and
// assembles them least significant first.
type bitReader struct {
	src      string
	index    int
	val      int
	position int
}

func (r *bitReader) read(bits int) (int, error) {
	result := 0
	for i := 0; i < bits; i++ {
		if r.position == 0 {
			if r.index >= len(r.src) {
				return 0, errors.Wrap(ErrCorrupt, "truncated")
			}
			v, ok := uriIndex[r.src[r.index]]
			if !ok {
				return 0, errors.Wrapf(ErrCorrupt, "invalid character %q", r.src[r.index])
			}
			r.val = v
			r.index++
			r.position = 1 << (bitsPerChar - 1)
		}
		if r.val&r.position != 0 {
			result |= 1 << i
		}
		r.position >>= 1
	}
	return result, nil
}
