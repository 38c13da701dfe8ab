// Package producer captures frames at a fixed cadence and streams them to the
// processor as wire records.
package producer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/segstream/internal/capture"
	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/imgcodec"
	"github.com/dgnsrekt/segstream/internal/metrics"
)

var ErrNotConnected = errors.New("producer is not connected")

type State string

const (
	StateIdle      State = "idle"
	StateConnected State = "connected"
	StateStreaming State = "streaming"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Sender delivers one encoded wire record.
type Sender interface {
	Send(ctx context.Context, record []byte) error
}

type Options struct {
	FPS         float64 // capture cadence, <= 0 means unthrottled
	JPEGQuality int
	MaxFrames   int // 0 means until stopped
	StatsEvery  int // log throughput every N frames, 0 disables
}

// Stats is a snapshot of the producer's progress.
type Stats struct {
	State      State
	FramesSent uint64
	StartTime  time.Time
	Elapsed    time.Duration
}

// AverageFPS returns frames sent per second since streaming started.
func (s Stats) AverageFPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesSent) / s.Elapsed.Seconds()
}

type Producer struct {
	source  capture.Source
	codec   imgcodec.Codec
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger

	mu         sync.Mutex
	sender     Sender
	state      State
	nextSeq    uint64
	framesSent uint64
	startTime  time.Time
}

func New(source capture.Source, opts Options, logger *zap.Logger) *Producer {
	limit := rate.Inf
	if opts.FPS > 0 {
		limit = rate.Limit(opts.FPS)
	}
	return &Producer{
		source:  source,
		codec:   imgcodec.JPEG(opts.JPEGQuality),
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logger,
		state:   StateIdle,
	}
}

// Attach hands the producer an established connection.
func (p *Producer) Attach(sender Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = sender
	p.state = StateConnected
}

// Run streams frames until ctx is cancelled, MaxFrames is reached, the source
// runs out, or a capture or send fails. Stopping returns nil; failing returns
// the cause and leaves the producer in StateFailed. A frame whose send failed
// is not retried.
func (p *Producer) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateConnected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	p.state = StateStreaming
	p.startTime = time.Now()
	sender := p.sender
	p.mu.Unlock()

	p.logger.Info("streaming started",
		zap.Float64("fps", p.opts.FPS),
		zap.Int("max_frames", p.opts.MaxFrames),
	)

	windowStart := p.startTime
	for {
		if p.opts.MaxFrames > 0 && p.FramesSent() >= uint64(p.opts.MaxFrames) {
			p.logger.Info("frame limit reached", zap.Int("max_frames", p.opts.MaxFrames))
			return p.stop()
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return p.stop()
		}

		img, err := p.source.Capture(ctx)
		if err != nil {
			if errors.Is(err, capture.ErrExhausted) {
				p.logger.Info("capture source exhausted")
				return p.stop()
			}
			if ctx.Err() != nil {
				return p.stop()
			}
			return p.fail(fmt.Errorf("capturing frame: %w", err))
		}

		wire, err := p.encode(img)
		if err != nil {
			return p.fail(err)
		}

		if err := sender.Send(ctx, wire); err != nil {
			if ctx.Err() != nil {
				return p.stop()
			}
			return p.fail(err)
		}

		sent := p.recordSent()
		metrics.FramesSent.Inc()
		metrics.BytesSent.Add(float64(len(wire)))

		if p.opts.StatsEvery > 0 && sent%uint64(p.opts.StatsEvery) == 0 {
			now := time.Now()
			window := now.Sub(windowStart)
			p.logger.Info("streaming stats",
				zap.Uint64("frames_sent", sent),
				zap.Float64("window_fps", float64(p.opts.StatsEvery)/window.Seconds()),
				zap.Float64("average_fps", float64(sent)/now.Sub(p.startTime).Seconds()),
			)
			windowStart = now
		}
	}
}

func (p *Producer) encode(img image.Image) ([]byte, error) {
	data, err := p.codec.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	b := img.Bounds()
	p.mu.Lock()
	seq := p.nextSeq
	p.mu.Unlock()

	wire, err := frame.Encode(frame.Record{
		Seq:       seq,
		Timestamp: frame.Timestamp(time.Now()),
		Width:     uint32(b.Dx()),
		Height:    uint32(b.Dy()),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding record %d: %w", seq, err)
	}
	return wire, nil
}

// recordSent advances the sequence after a successful send.
func (p *Producer) recordSent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSeq++
	p.framesSent++
	return p.framesSent
}

func (p *Producer) stop() error {
	p.setState(StateStopped)
	st := p.Stats()
	p.logger.Info("streaming stopped",
		zap.Uint64("frames_sent", st.FramesSent),
		zap.Duration("elapsed", st.Elapsed),
		zap.Float64("average_fps", st.AverageFPS()),
	)
	return nil
}

func (p *Producer) fail(err error) error {
	p.setState(StateFailed)
	p.logger.Error("streaming failed", zap.Uint64("frames_sent", p.FramesSent()), zap.Error(err))
	return err
}

func (p *Producer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Producer) FramesSent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesSent
}

func (p *Producer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{State: p.state, FramesSent: p.framesSent, StartTime: p.startTime}
	if !p.startTime.IsZero() {
		st.Elapsed = time.Since(p.startTime)
	}
	return st
}
