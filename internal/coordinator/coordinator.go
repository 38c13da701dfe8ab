// Package coordinator drives the processor side of a run: it accepts the
// camera connection, reassembles frames, batches them and hands each batch
// to the processing stage.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/batch"
	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/metrics"
	"github.com/dgnsrekt/segstream/internal/transport"
)

const DefaultReadBufferSize = 64 * 1024

// Processor turns a batch into one outcome per frame.
type Processor interface {
	ProcessBatch(ctx context.Context, b batch.Batch) []frame.Outcome
}

// Sink receives the outcomes of every processed batch.
type Sink interface {
	Record(outcomes []frame.Outcome) error
}

type Options struct {
	BatchSize      int
	ReadBufferSize int
	MaxRecordSize  int
	// Pipelined overlaps receiving the next batch with processing the
	// current one. Batches are still processed one at a time, in order.
	Pipelined bool
}

type Coordinator struct {
	processor Processor
	sinks     []Sink
	opts      Options
	logger    *zap.Logger
	stats     counters
}

func New(processor Processor, opts Options, logger *zap.Logger, sinks ...Sink) *Coordinator {
	if opts.BatchSize < 1 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.ReadBufferSize < 1 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.MaxRecordSize < 1 {
		opts.MaxRecordSize = frame.DefaultMaxRecordSize
	}
	return &Coordinator{
		processor: processor,
		sinks:     sinks,
		opts:      opts,
		logger:    logger,
	}
}

// Stats returns a snapshot that is safe to take while a run is in progress.
func (c *Coordinator) Stats() Stats {
	return c.stats.snapshot()
}

// Run listens on addr, serves exactly one producer connection and returns
// the final statistics.
func (c *Coordinator) Run(ctx context.Context, addr string) (Stats, error) {
	ln, err := transport.Listen(addr)
	if err != nil {
		return c.Stats(), err
	}
	return c.Serve(ctx, ln)
}

// Serve accepts one connection from ln and streams it to completion.
func (c *Coordinator) Serve(ctx context.Context, ln *transport.Listener) (Stats, error) {
	defer ln.Close()

	c.logger.Info("waiting for camera connection", zap.String("addr", ln.Addr()))
	conn, err := ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Info("stopped before a camera connected")
			return c.Stats(), nil
		}
		return c.Stats(), fmt.Errorf("accepting connection: %w", err)
	}
	return c.Stream(ctx, conn)
}

// Stream consumes conn until the producer closes it, the connection fails or
// ctx is cancelled. On an orderly end the buffered remainder is processed as
// a final short batch. On cancellation it is dropped.
func (c *Coordinator) Stream(ctx context.Context, conn *transport.Conn) (Stats, error) {
	c.stats.startTime.Store(time.Now().UnixNano())
	c.stats.remote.Store(conn.RemoteAddr())
	c.stats.open.Store(true)
	metrics.ConnectionOpen.Set(1)

	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stopClose()
		_ = conn.Close()
		c.stats.open.Store(false)
		metrics.ConnectionOpen.Set(0)
	}()

	c.logger.Info("camera connected", zap.String("remote", conn.RemoteAddr()))

	dispatch, wait := c.dispatcher(ctx)
	err := c.receive(ctx, conn, dispatch)
	wait()

	st := c.Stats()
	c.logger.Info("stream complete",
		zap.Uint64("frames_received", st.FramesReceived),
		zap.Uint64("frames_processed", st.FramesProcessed),
		zap.Uint64("succeeded", st.Succeeded),
		zap.Uint64("failed", st.Failed),
		zap.Uint64("malformed", st.Malformed),
		zap.Uint64("batches", st.Batches),
		zap.Uint64("dropped", st.Dropped),
		zap.Duration("elapsed", st.Elapsed),
		zap.Float64("fps", st.FPS()),
	)
	return st, err
}

func (c *Coordinator) receive(ctx context.Context, conn *transport.Conn, dispatch func(batch.Batch)) error {
	buf := make([]byte, c.opts.ReadBufferSize)
	dec := frame.NewDecoder(c.opts.MaxRecordSize)
	acc := batch.New(c.opts.BatchSize)

	for {
		n, err := conn.Receive(buf)
		if n > 0 {
			c.stats.bytesReceived.Add(uint64(n))
			dec.Feed(buf[:n])
			c.drain(dec, acc, dispatch)
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			dropped := acc.Buffered()
			c.stats.dropped.Add(uint64(dropped))
			c.logger.Info("interrupted, dropping unprocessed frames", zap.Int("dropped", dropped))
			return nil
		}

		if final, ok := acc.Flush(); ok {
			dispatch(final)
		}
		if dec.Pending() > 0 {
			c.logger.Warn("discarding incomplete trailing record", zap.Int("bytes", dec.Pending()))
		}

		if errors.Is(err, io.EOF) {
			c.logger.Info("camera closed the stream")
			return nil
		}
		return fmt.Errorf("receiving frames: %w", err)
	}
}

func (c *Coordinator) drain(dec *frame.Decoder, acc *batch.Accumulator, dispatch func(batch.Batch)) {
	for {
		rec, err := dec.Next()
		if errors.Is(err, frame.ErrIncomplete) {
			return
		}
		if err != nil {
			c.stats.malformed.Add(1)
			metrics.MalformedRecords.Inc()
			c.logger.Warn("discarding malformed record", zap.Error(err))
			continue
		}

		c.stats.framesReceived.Add(1)
		metrics.FramesReceived.Inc()
		if b, ok := acc.Add(rec); ok {
			dispatch(b)
		}
	}
}

// dispatcher returns the function that hands sealed batches to processing and
// a wait function that returns once every dispatched batch is done. Once ctx is
// cancelled, batches that have not started are dropped rather than processed.
func (c *Coordinator) dispatcher(ctx context.Context) (func(batch.Batch), func()) {
	if !c.opts.Pipelined {
		return func(b batch.Batch) {
			if ctx.Err() != nil {
				c.drop(b)
				return
			}
			c.runBatch(ctx, b)
		}, func() {}
	}

	queue := make(chan batch.Batch, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for b := range queue {
			if ctx.Err() != nil {
				c.drop(b)
				continue
			}
			c.runBatch(ctx, b)
		}
	}()

	dispatch := func(b batch.Batch) {
		if ctx.Err() != nil {
			c.drop(b)
			return
		}
		select {
		case queue <- b:
		case <-ctx.Done():
			c.drop(b)
		}
	}
	wait := func() {
		close(queue)
		wg.Wait()
	}
	return dispatch, wait
}

func (c *Coordinator) drop(b batch.Batch) {
	c.stats.dropped.Add(uint64(b.Len()))
	c.logger.Info("interrupted, dropping sealed batch", zap.Int("batch", b.Index), zap.Int("frames", b.Len()))
}

func (c *Coordinator) runBatch(ctx context.Context, b batch.Batch) {
	start := time.Now()
	outcomes := c.process(ctx, b)
	elapsed := time.Since(start)

	succeeded, failed := frame.Tally(outcomes)
	c.stats.batches.Add(1)
	c.stats.framesProcessed.Add(uint64(len(outcomes)))
	c.stats.succeeded.Add(uint64(succeeded))
	c.stats.failed.Add(uint64(failed))

	metrics.Batches.Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())
	metrics.FramesProcessed.WithLabelValues(string(frame.StatusSuccess)).Add(float64(succeeded))
	metrics.FramesProcessed.WithLabelValues(string(frame.StatusFailure)).Add(float64(failed))

	for _, sink := range c.sinks {
		if err := sink.Record(outcomes); err != nil {
			c.logger.Warn("outcome sink failed", zap.Int("batch", b.Index), zap.Error(err))
		}
	}

	fps := 0.0
	if elapsed > 0 {
		fps = float64(len(outcomes)) / elapsed.Seconds()
	}
	c.logger.Info(fmt.Sprintf("processed %d frames | FPS: %.2f", len(outcomes), fps),
		zap.Int("batch", b.Index),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
}

// process runs the processor and converts a panic into one failure per frame.
func (c *Coordinator) process(ctx context.Context, b batch.Batch) (outcomes []frame.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("batch processing panicked", zap.Int("batch", b.Index), zap.Any("panic", r))
			outcomes = make([]frame.Outcome, 0, b.Len())
			for _, rec := range b.Records {
				outcomes = append(outcomes, frame.Failure(rec.Seq, fmt.Sprintf("batch panic: %v", r)))
			}
		}
	}()

	outcomes = c.processor.ProcessBatch(ctx, b)
	if len(outcomes) != b.Len() {
		c.logger.Error("processor returned wrong outcome count",
			zap.Int("batch", b.Index),
			zap.Int("frames", b.Len()),
			zap.Int("outcomes", len(outcomes)),
		)
		outcomes = reconcile(b, outcomes)
	}
	return outcomes
}

// reconcile keeps one outcome per frame, failing frames the processor skipped.
func reconcile(b batch.Batch, outcomes []frame.Outcome) []frame.Outcome {
	bySeq := make(map[uint64]frame.Outcome, len(outcomes))
	for _, o := range outcomes {
		bySeq[o.Seq] = o
	}
	fixed := make([]frame.Outcome, 0, b.Len())
	for _, rec := range b.Records {
		if o, ok := bySeq[rec.Seq]; ok {
			fixed = append(fixed, o)
			continue
		}
		fixed = append(fixed, frame.Failure(rec.Seq, "no outcome produced"))
	}
	return fixed
}
