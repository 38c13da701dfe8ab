package frame

import (
	"fmt"
	"math"
	"time"
)

// Record is one captured frame in flight between the camera and the processor.
type Record struct {
	Seq       uint64  // frame_id, strictly increasing per connection
	Timestamp float64 // capture time in unix seconds
	Width     uint32
	Height    uint32
	Data      []byte // JPEG-encoded pixel buffer
}

// CapturedAt converts the wire timestamp back into a time.Time.
func (r Record) CapturedAt() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (r Record) String() string {
	return fmt.Sprintf("frame %d (%dx%d, %d bytes)", r.Seq, r.Width, r.Height, len(r.Data))
}

// Timestamp converts a capture time into wire seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Status is the result class of processing one frame.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the result of processing one Record.
type Outcome struct {
	Seq         uint64    `json:"frame_id"`
	Status      Status    `json:"status"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Success builds a success outcome for seq written to path.
func Success(seq uint64, path string) Outcome {
	return Outcome{Seq: seq, Status: StatusSuccess, OutputPath: path, ProcessedAt: time.Now()}
}

// Failure builds a failure outcome for seq with a human-readable detail.
func Failure(seq uint64, detail string) Outcome {
	return Outcome{Seq: seq, Status: StatusFailure, Error: detail, ProcessedAt: time.Now()}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Tally counts successes and failures in a set of outcomes.
func Tally(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
