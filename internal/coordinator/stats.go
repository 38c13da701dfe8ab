package coordinator

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of one processor run.
type Stats struct {
	FramesReceived  uint64        `json:"frames_received"`
	FramesProcessed uint64        `json:"frames_processed"`
	Succeeded       uint64        `json:"succeeded"`
	Failed          uint64        `json:"failed"`
	Malformed       uint64        `json:"malformed"`
	Batches         uint64        `json:"batches"`
	Dropped         uint64        `json:"dropped"`
	BytesReceived   uint64        `json:"bytes_received"`
	StartTime       time.Time     `json:"start_time"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	Open            bool          `json:"connection_open"`
	Remote          string        `json:"remote,omitempty"`
}

// FPS returns processed frames per second since the connection was accepted.
func (s Stats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesProcessed) / s.Elapsed.Seconds()
}

// counters are written by the receive and processing goroutines and read by
// the status server.
type counters struct {
	framesReceived  atomic.Uint64
	framesProcessed atomic.Uint64
	succeeded       atomic.Uint64
	failed          atomic.Uint64
	malformed       atomic.Uint64
	batches         atomic.Uint64
	dropped         atomic.Uint64
	bytesReceived   atomic.Uint64
	open            atomic.Bool
	startTime       atomic.Int64 // unix nanos, 0 before accept
	remote          atomic.Value // string
}

func (c *counters) snapshot() Stats {
	st := Stats{
		FramesReceived:  c.framesReceived.Load(),
		FramesProcessed: c.framesProcessed.Load(),
		Succeeded:       c.succeeded.Load(),
		Failed:          c.failed.Load(),
		Malformed:       c.malformed.Load(),
		Batches:         c.batches.Load(),
		Dropped:         c.dropped.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		Open:            c.open.Load(),
	}
	if remote, ok := c.remote.Load().(string); ok {
		st.Remote = remote
	}
	if ns := c.startTime.Load(); ns != 0 {
		st.StartTime = time.Unix(0, ns)
		st.Elapsed = time.Since(st.StartTime)
	}
	return st
}
