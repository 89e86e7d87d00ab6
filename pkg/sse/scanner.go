package sse

import (
	"io"

	"github.com/pkg/errors"
)

const defaultChunkSize = 4096

// Scanner reads chunks from r and yields complete lines as they become
// available. Unlike bufio.Scanner it never blocks on a line boundary: each
// call to Scan reads at most one chunk once the lines already decoded are
// consumed.
type Scanner struct {
	r       io.Reader
	dec     *Decoder
	buf     []byte
	lines   []string
	line    string
	err     error
	done    bool
	dropped string
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:   r,
		dec: NewDecoder(),
		buf: make([]byte, defaultChunkSize),
	}
}

// Scan advances to the next complete line. It returns false at end of input
// or on a read error; Err reports the latter.
func (s *Scanner) Scan() bool {
	for len(s.lines) == 0 {
		if s.done {
			return false
		}
		n, err := s.r.Read(s.buf)
		if n > 0 {
			s.lines = s.dec.Feed(s.buf[:n])
		}
		if err != nil {
			s.done = true
			s.dropped = s.dec.Finish()
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
		}
	}
	s.line, s.lines = s.lines[0], s.lines[1:]
	return true
}

func (s *Scanner) Line() string { return s.line }

func (s *Scanner) Err() error { return s.err }

// Dropped returns the newline-less tail discarded at end of input.
func (s *Scanner) Dropped() string { return s.dropped }
