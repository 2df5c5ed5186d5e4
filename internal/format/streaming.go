package format

// streaming.go provides reader wrappers that clean delimited text on the fly.
//
//   - SkipBOM drops a leading UTF-8 byte order mark written by Windows tools
//   - UTF8Sanitizer replaces invalid UTF-8 bytes with '?'
//
// CleanReader applies both in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader that omits a leading UTF-8 BOM, if any.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

const sanitizerChunk = 32 * 1024

// UTF8Sanitizer wraps a reader and replaces every byte that is not part of a
// valid UTF-8 sequence with '?'. Multi-byte runes split across reads are held
// back until complete, so memory stays bounded by one chunk.
type UTF8Sanitizer struct {
	r     io.Reader
	chunk []byte
	in    []byte // undecoded input, at most one partial rune between reads
	out   []byte // sanitized bytes not yet returned
	err   error
}

// NewUTF8Sanitizer creates a sanitizing reader.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, chunk: make([]byte, sanitizerChunk)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.out) == 0 {
		if s.err != nil {
			if len(s.in) == 0 {
				return 0, s.err
			}
			s.out = s.sanitize(true)
			continue
		}

		n, err := s.r.Read(s.chunk)
		s.in = append(s.in, s.chunk[:n]...)
		s.err = err
		s.out = s.sanitize(err != nil)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// sanitize decodes s.in into clean output. Unless final, an incomplete rune
// at the end is kept in s.in for the next read.
func (s *UTF8Sanitizer) sanitize(final bool) []byte {
	out := make([]byte, 0, len(s.in))
	i := 0
	for i < len(s.in) {
		b := s.in[i]
		if b < utf8.RuneSelf {
			out = append(out, b)
			i++
			continue
		}
		if !final && !utf8.FullRune(s.in[i:]) {
			break
		}
		r, size := utf8.DecodeRune(s.in[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
			i++
			continue
		}
		out = append(out, s.in[i:i+size]...)
		i += size
	}
	s.in = append(s.in[:0], s.in[i:]...)
	return out
}

// CleanReader strips the BOM first, then sanitizes UTF-8.
func CleanReader(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(SkipBOM(r))
}
