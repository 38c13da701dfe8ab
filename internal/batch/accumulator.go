// Package batch buffers decoded frame records into fixed-size batches.
package batch

import "github.com/dgnsrekt/segstream/internal/frame"

// DefaultSize is the number of records per batch when none is configured.
const DefaultSize = 10

// Batch is an ordered, sealed group of records handed to the processing stage.
type Batch struct {
	Index   int // dispatch order, starting at 0
	Records []frame.Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// Accumulator collects records until a batch is full.
// It is owned by the single stream reader and is not safe for concurrent use.
type Accumulator struct {
	size       int
	buf        []frame.Record
	dispatched int
}

// New creates an Accumulator. Sizes below 1 fall back to DefaultSize.
func New(size int) *Accumulator {
	if size < 1 {
		size = DefaultSize
	}
	return &Accumulator{
		size: size,
		buf:  make([]frame.Record, 0, size),
	}
}

// Add appends rec. When the buffer reaches the batch size the full batch is
// returned with true and a fresh buffer takes its place.
func (a *Accumulator) Add(rec frame.Record) (Batch, bool) {
	a.buf = append(a.buf, rec)
	if len(a.buf) < a.size {
		return Batch{}, false
	}
	return a.seal(), true
}

// Flush returns the partial remainder at end of stream. An empty remainder
// yields false and dispatches nothing.
func (a *Accumulator) Flush() (Batch, bool) {
	if len(a.buf) == 0 {
		return Batch{}, false
	}
	return a.seal(), true
}

// Buffered returns the number of records waiting for the next batch.
func (a *Accumulator) Buffered() int {
	return len(a.buf)
}

// Dispatched returns the number of batches sealed so far.
func (a *Accumulator) Dispatched() int {
	return a.dispatched
}

// Size returns the configured batch size.
func (a *Accumulator) Size() int {
	return a.size
}

func (a *Accumulator) seal() Batch {
	b := Batch{Index: a.dispatched, Records: a.buf}
	a.dispatched++
	a.buf = make([]frame.Record, 0, a.size)
	return b
}
