package sse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder reassembles newline-delimited text lines from a byte stream that
// arrives in arbitrarily split chunks.
//
// A multibyte character split across two chunks is held back until its last
// byte arrives, so it decodes to exactly one character. A leading byte order
// mark is dropped. The newline-less tail
// of the stream is kept until more bytes arrive; Finish drops it.
type Decoder struct {
	utf8    *encoding.Decoder
	raw     []byte
	pending string
}

func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8BOM.NewDecoder()}
}

// Feed decodes chunk and returns every line completed by it, without the
// terminating "\n" (and without a "\r" preceding it).
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.pending += d.decode(chunk, false)
	if !strings.Contains(d.pending, "\n") {
		return nil
	}
	parts := strings.Split(d.pending, "\n")
	d.pending = parts[len(parts)-1]
	lines := parts[:len(parts)-1]
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Finish ends the stream. The incomplete trailing line is never emitted as a
// line; it is returned only so callers can log what was discarded.
func (d *Decoder) Finish() string {
	tail := d.pending + d.decode(nil, true)
	d.Reset()
	return tail
}

// Pending returns the newline-less tail held back so far.
func (d *Decoder) Pending() string {
	return d.pending
}

func (d *Decoder) Reset() {
	d.utf8.Reset()
	d.raw = nil
	d.pending = ""
}

func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := make([]byte, 0, len(d.raw)+len(chunk))
	src = append(src, d.raw...)
	src = append(src, chunk...)
	d.raw = nil
	if len(src) == 0 {
		return ""
	}

	// ill-formed bytes expand to U+FFFD (3 bytes) each
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		switch err {
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
			continue
		case transform.ErrShortSrc:
			d.raw = append(d.raw, src...)
		}
		break
	}
	return out.String()
}
