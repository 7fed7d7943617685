package protocol

import (
	"bytes"
	"fmt"
)

// Terminator ends every request and response on the wire.
const Terminator = "\r\n\r\n"

var terminator = []byte(Terminator)

// Framer reassembles terminator-delimited frames from a byte stream.
//
// Feed may be called with arbitrarily sized chunks. The terminator is searched
// over the whole accumulated buffer, re-scanning the last len(Terminator)-1
// bytes of the previous chunk so a terminator split across reads is found.
//
// A Framer is not safe for concurrent use. Each connection owns one.
type Framer struct {
	buf     []byte
	maxSize int
}

// NewFramer creates a Framer. maxSize bounds the frame body (terminator
// excluded); zero means unbounded.
func NewFramer(maxSize int) *Framer {
	return &Framer{maxSize: maxSize}
}

// Feed appends p to the buffer and reports whether a complete frame is
// available. On success the frame (terminator excluded) is returned and the
// buffer is cleared, bytes after the terminator are discarded since only one
// request may be in flight per connection.
//
// Feed returns a transport error once the buffered bytes can no longer form
// a frame within maxSize.
func (f *Framer) Feed(p []byte) ([]byte, bool, error) {
	prev := len(f.buf)
	f.buf = append(f.buf, p...)

	start := prev - (len(terminator) - 1)
	if start < 0 {
		start = 0
	}

	if idx := bytes.Index(f.buf[start:], terminator); idx >= 0 {
		frame := f.buf[:start+idx]
		f.buf = nil
		return frame, true, nil
	}

	if f.maxSize > 0 && len(f.buf)-(len(terminator)-1) > f.maxSize {
		size := len(f.buf)
		f.buf = nil
		return nil, false, NewTransportError(
			fmt.Sprintf("request exceeds %d bytes without terminator", f.maxSize),
			fmt.Errorf("buffered %d bytes", size))
	}

	return nil, false, nil
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered bytes.
func (f *Framer) Reset() {
	f.buf = nil
}
