package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/batch"
	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/transport"
)

// recordingProcessor succeeds every frame and remembers what it saw.
type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]uint64
	panicAt int // batch index that panics, -1 for none
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{panicAt: -1}
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, b batch.Batch) []frame.Outcome {
	if b.Index == p.panicAt {
		panic("segmenter crashed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	seqs := make([]uint64, 0, b.Len())
	outcomes := make([]frame.Outcome, 0, b.Len())
	for _, rec := range b.Records {
		seqs = append(seqs, rec.Seq)
		outcomes = append(outcomes, frame.Success(rec.Seq, fmt.Sprintf("frame_%06d.jpg", rec.Seq)))
	}
	p.batches = append(p.batches, seqs)
	return outcomes
}

func (p *recordingProcessor) sizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sizes []int
	for _, b := range p.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func (p *recordingProcessor) seqs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []uint64
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []frame.Outcome
}

func (s *recordingSink) Record(outcomes []frame.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
	return nil
}

func (s *recordingSink) all() []frame.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.Outcome(nil), s.outcomes...)
}

type result struct {
	stats Stats
	err   error
}

func serve(t *testing.T, ctx context.Context, c *Coordinator) (net.Conn, <-chan result) {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan result, 1)
	go func() {
		st, err := c.Serve(ctx, ln)
		done <- result{st, err}
	}()

	conn, err := net.Dial("tcp", ln.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn, done
}

func wire(t *testing.T, seq uint64) []byte {
	t.Helper()
	b, err := frame.Encode(frame.Record{Seq: seq, Timestamp: float64(seq), Width: 4, Height: 4, Data: []byte{0xff, 0xd8, byte(seq)}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return b
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("coordinator did not finish")
		return result{}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStreamBatchesFrames(t *testing.T) {
	for _, pipelined := range []bool{false, true} {
		t.Run(fmt.Sprintf("pipelined=%v", pipelined), func(t *testing.T) {
			proc := newRecordingProcessor()
			sink := &recordingSink{}
			c := New(proc, Options{BatchSize: 10, ReadBufferSize: 97, Pipelined: pipelined}, zap.NewNop(), sink)

			conn, done := serve(t, context.Background(), c)
			for seq := uint64(0); seq < 25; seq++ {
				if _, err := conn.Write(wire(t, seq)); err != nil {
					t.Fatalf("write failed: %v", err)
				}
			}
			conn.Close()

			r := wait(t, done)
			if r.err != nil {
				t.Fatalf("Serve failed: %v", r.err)
			}
			if got := proc.sizes(); !equalInts(got, []int{10, 10, 5}) {
				t.Errorf("expected batches [10 10 5], got %v", got)
			}
			for i, seq := range proc.seqs() {
				if seq != uint64(i) {
					t.Fatalf("position %d: expected seq %d, got %d", i, i, seq)
				}
			}
			if len(sink.all()) != 25 {
				t.Errorf("expected 25 outcomes at the sink, got %d", len(sink.all()))
			}
			if r.stats.FramesReceived != 25 || r.stats.FramesProcessed != 25 || r.stats.Succeeded != 25 || r.stats.Batches != 3 {
				t.Errorf("unexpected stats: %+v", r.stats)
			}
			if r.stats.Open {
				t.Error("connection should be reported closed")
			}
		})
	}
}

func TestStreamDropMidRecord(t *testing.T) {
	proc := newRecordingProcessor()
	c := New(proc, Options{BatchSize: 10}, zap.NewNop())

	conn, done := serve(t, context.Background(), c)
	for seq := uint64(0); seq < 7; seq++ {
		conn.Write(wire(t, seq))
	}
	partial := wire(t, 7)
	conn.Write(partial[:len(partial)/2])
	conn.Close()

	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("expected no error for a dropped producer, got %v", r.err)
	}
	if got := proc.sizes(); !equalInts(got, []int{7}) {
		t.Errorf("expected one final batch of 7, got %v", got)
	}
	if r.stats.FramesReceived != 7 || r.stats.Malformed != 0 {
		t.Errorf("unexpected stats: %+v", r.stats)
	}
}

func TestStreamSkipsMalformedRecords(t *testing.T) {
	proc := newRecordingProcessor()
	c := New(proc, Options{BatchSize: 4}, zap.NewNop())

	conn, done := serve(t, context.Background(), c)
	conn.Write(wire(t, 0))
	conn.Write([]byte("{not json}\n"))
	conn.Write(wire(t, 1))
	conn.Write([]byte(`{"frame_id":2,"timestamp":1,"width":0,"height":4,"data":"AQ=="}` + "\n"))
	conn.Write(wire(t, 3))
	conn.Close()

	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("Serve failed: %v", r.err)
	}
	if r.stats.Malformed != 2 || r.stats.FramesReceived != 3 {
		t.Errorf("expected 2 malformed and 3 received, got %+v", r.stats)
	}
	if got := proc.seqs(); len(got) != 3 || got[2] != 3 {
		t.Errorf("expected seqs [0 1 3], got %v", got)
	}
}

func TestStreamRecoversProcessorPanic(t *testing.T) {
	proc := newRecordingProcessor()
	proc.panicAt = 0
	sink := &recordingSink{}
	c := New(proc, Options{BatchSize: 2}, zap.NewNop(), sink)

	conn, done := serve(t, context.Background(), c)
	for seq := uint64(0); seq < 4; seq++ {
		conn.Write(wire(t, seq))
	}
	conn.Close()

	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("Serve failed: %v", r.err)
	}
	if r.stats.Failed != 2 || r.stats.Succeeded != 2 || r.stats.Batches != 2 {
		t.Errorf("expected first batch failed and second succeeded, got %+v", r.stats)
	}
	outcomes := sink.all()
	if len(outcomes) != 4 || outcomes[0].OK() || outcomes[1].OK() {
		t.Errorf("expected two failure outcomes first, got %+v", outcomes)
	}
}

func TestStreamCancelDropsRemainder(t *testing.T) {
	proc := newRecordingProcessor()
	c := New(proc, Options{BatchSize: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn, done := serve(t, ctx, c)
	defer conn.Close()

	for seq := uint64(0); seq < 3; seq++ {
		conn.Write(wire(t, seq))
	}
	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().FramesReceived < 3 {
		if time.Now().After(deadline) {
			t.Fatal("frames never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("interrupt should not be an error, got %v", r.err)
	}
	if r.stats.Dropped != 3 || r.stats.Batches != 0 {
		t.Errorf("expected 3 dropped and no batches, got %+v", r.stats)
	}
}

func TestServeCancelledBeforeConnect(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	st, err := New(newRecordingProcessor(), Options{}, zap.NewNop()).Serve(ctx, ln)
	if err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
	if st.FramesReceived != 0 {
		t.Errorf("expected empty stats, got %+v", st)
	}
}

// blockingProcessor holds the first batch until released.
type blockingProcessor struct {
	recordingProcessor
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingProcessor) ProcessBatch(ctx context.Context, b batch.Batch) []frame.Outcome {
	p.once.Do(func() {
		close(p.started)
		<-p.release
	})
	return p.recordingProcessor.ProcessBatch(ctx, b)
}

func TestPipelinedCancelDropsQueuedBatch(t *testing.T) {
	proc := &blockingProcessor{
		recordingProcessor: recordingProcessor{panicAt: -1},
		started:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	c := New(proc, Options{BatchSize: 2, Pipelined: true}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn, done := serve(t, ctx, c)
	defer conn.Close()

	for seq := uint64(0); seq < 5; seq++ {
		conn.Write(wire(t, seq))
	}
	select {
	case <-proc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started")
	}
	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().FramesReceived < 5 {
		if time.Now().After(deadline) {
			t.Fatal("frames never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	close(proc.release)

	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("interrupt should not be an error, got %v", r.err)
	}
	if got := proc.sizes(); !equalInts(got, []int{2}) {
		t.Errorf("expected only the running batch to be processed, got %v", got)
	}
	if r.stats.Batches != 1 || r.stats.Succeeded != 2 || r.stats.Failed != 0 {
		t.Errorf("expected one successful batch, got %+v", r.stats)
	}
	if r.stats.Dropped != 3 {
		t.Errorf("expected queued batch and remainder dropped (3 frames), got %d", r.stats.Dropped)
	}
}
