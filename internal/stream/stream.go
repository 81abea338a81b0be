// Package stream provides io.Reader wrappers used while loading dataset
// files: BOM removal and UTF-8 repair for CSV input, and byte counting for
// progress reporting over archives.
package stream

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader that drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming.
// A multi-byte sequence split across two reads of the underlying reader is
// carried over rather than being treated as invalid.
type UTF8Sanitizer struct {
	r       io.Reader
	buf     []byte
	pending []byte // incomplete trailing sequence from the last fill
	ready   []byte // sanitized bytes not yet returned
	err     error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.ready) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.ready)
	s.ready = s.ready[n:]
	return n, nil
}

func (s *UTF8Sanitizer) fill() {
	if s.buf == nil {
		s.buf = make([]byte, 4096)
	}
	offset := copy(s.buf, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(s.buf[offset:])
	s.err = err
	data := s.buf[:offset+n]
	if isASCII(data) {
		s.ready = data
		return
	}

	atEOF := err != nil
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) && possibleStart(data[read]) {
				s.pending = append(s.pending, data[read:]...)
				break
			}
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	s.ready = data[:write]
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// possibleStart reports whether b can begin a multi-byte sequence.
func possibleStart(b byte) bool {
	return b >= 0xC2 && b <= 0xF4
}

// CountingReader counts bytes read from the wrapped reader.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// ForCSV applies BOM removal and UTF-8 repair, in that order.
func ForCSV(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(SkipBOM(r))
}
