package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Decoder reassembles records from an arbitrarily chunked byte stream.
// It is not safe for concurrent use; the stream has a single reader.
type Decoder struct {
	buf        []byte
	maxRecord  int
	discarding bool // dropping an oversized line until its newline arrives
}

// NewDecoder creates a Decoder. maxRecord <= 0 disables the line size bound.
func NewDecoder(maxRecord int) *Decoder {
	return &Decoder{maxRecord: maxRecord}
}

// Feed appends a received chunk.
func (d *Decoder) Feed(p []byte) {
	if d.discarding {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			return
		}
		p = p[idx+1:]
		d.discarding = false
	}
	d.buf = append(d.buf, p...)
}

// Next returns the next complete record in arrival order.
//
// ErrIncomplete means only a trailing fragment is buffered; call Feed and try
// again. ErrMalformed means one bad line was dropped and the stream continues.
func (d *Decoder) Next() (Record, error) {
	if d.maxRecord > 0 {
		if idx := bytes.IndexByte(d.buf, '\n'); idx > d.maxRecord {
			d.buf = append(d.buf[:0], d.buf[idx+1:]...)
			return Record{}, fmt.Errorf("%w: %d byte line (limit %d)", ErrMalformed, idx, d.maxRecord)
		}
	}

	rec, n, err := Decode(d.buf)
	if n > 0 {
		d.buf = append(d.buf[:0], d.buf[n:]...)
	}

	if errors.Is(err, ErrIncomplete) && d.maxRecord > 0 && len(d.buf) > d.maxRecord {
		size := len(d.buf)
		d.buf = d.buf[:0]
		d.discarding = true
		return Record{}, fmt.Errorf("%w: %d bytes without terminator (limit %d)", ErrMalformed, size, d.maxRecord)
	}
	return rec, err
}

// Pending returns the number of buffered bytes not yet decoded.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset drops any buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.discarding = false
}
