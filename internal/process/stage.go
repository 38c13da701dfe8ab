// Package process runs the per-frame background replacement over a batch.
package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/batch"
	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/imgcodec"
	"github.com/dgnsrekt/segstream/internal/output"
	"github.com/dgnsrekt/segstream/internal/segment"
)

// Options configures a Stage.
type Options struct {
	Decoder   imgcodec.Codec // decodes incoming payloads
	Encoder   imgcodec.Codec // encodes results for disk
	Segmenter segment.Segmenter
	Policy    segment.Policy
	Output    *output.Manager
	Workers   int
}

type Stage struct {
	decoder   imgcodec.Codec
	encoder   imgcodec.Codec
	segmenter segment.Segmenter
	policy    segment.Policy
	output    *output.Manager
	workers   int
	logger    *zap.Logger
}

func NewStage(opts Options, logger *zap.Logger) *Stage {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	dec := opts.Decoder
	if dec == nil {
		dec = opts.Encoder
	}
	return &Stage{
		decoder:   dec,
		encoder:   opts.Encoder,
		segmenter: opts.Segmenter,
		policy:    opts.Policy,
		output:    opts.Output,
		workers:   workers,
		logger:    logger,
	}
}

func (s *Stage) Workers() int {
	return s.workers
}

// ProcessBatch returns exactly one outcome per record, in record order.
func (s *Stage) ProcessBatch(ctx context.Context, b batch.Batch) []frame.Outcome {
	start := time.Now()
	outcomes := Map(ctx, b.Records, s.workers, s.processFrame)

	succeeded, _ := frame.Tally(outcomes)
	elapsed := time.Since(start)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(len(outcomes)) / elapsed.Seconds()
	}
	s.logger.Info("batch processed",
		zap.Int("batch", b.Index),
		zap.String("result", fmt.Sprintf("%d/%d frames successful", succeeded, len(outcomes))),
		zap.Duration("elapsed", elapsed),
		zap.Float64("fps", fps),
	)
	return outcomes
}

func (s *Stage) processFrame(ctx context.Context, rec frame.Record) (out frame.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic processing frame", zap.Uint64("seq", rec.Seq), zap.Any("panic", r))
			out = frame.Failure(rec.Seq, fmt.Sprintf("panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return frame.Failure(rec.Seq, DetailCancelled)
	}

	path, err := s.render(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			s.logger.Warn("failed to decode frame", zap.Uint64("seq", rec.Seq), zap.Error(err))
			return frame.Failure(rec.Seq, DetailDecode)
		}
		if ctx.Err() != nil {
			return frame.Failure(rec.Seq, DetailCancelled)
		}
		s.logger.Warn("frame failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
		return frame.Failure(rec.Seq, err.Error())
	}

	s.logger.Debug("frame written", zap.Uint64("seq", rec.Seq), zap.String("path", path))
	return frame.Success(rec.Seq, path)
}

func (s *Stage) render(ctx context.Context, rec frame.Record) (string, error) {
	img, err := s.decoder.Decode(rec.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	mask, err := s.segmenter.Segment(ctx, img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSegment, err)
	}

	composed, err := s.policy.Composite(img, mask)
	if err != nil {
		return "", err
	}

	data, err := s.encoder.Encode(composed)
	if err != nil {
		return "", fmt.Errorf("%w: encoding: %v", ErrWrite, err)
	}

	path, err := s.output.Write(rec.Seq, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return path, nil
}
