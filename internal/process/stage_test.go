package process

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/batch"
	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/imgcodec"
	"github.com/dgnsrekt/segstream/internal/output"
	"github.com/dgnsrekt/segstream/internal/segment"
)

type stubSegmenter struct {
	fn func(img image.Image) (*segment.Mask, error)
}

func (s stubSegmenter) Segment(_ context.Context, img image.Image) (*segment.Mask, error) {
	return s.fn(img)
}

func fullMask(img image.Image) (*segment.Mask, error) {
	b := img.Bounds()
	m := segment.NewMask(b.Dx(), b.Dy())
	for i := range m.Values {
		m.Values[i] = 1
	}
	return m, nil
}

func jpegFrame(t *testing.T, seq uint64) frame.Record {
	t.Helper()
	img := imaging.New(16, 12, color.NRGBA{R: uint8(seq * 20), G: 80, B: 120, A: 255})
	data, err := imgcodec.JPEG(85).Encode(img)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return frame.Record{Seq: seq, Width: 16, Height: 12, Data: data}
}

func newTestStage(t *testing.T, seg segment.Segmenter, workers int) *Stage {
	t.Helper()
	out, err := output.NewManager(t.TempDir(), "jpg")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return NewStage(Options{
		Encoder:   imgcodec.JPEG(90),
		Segmenter: seg,
		Policy:    segment.DefaultPolicy(),
		Output:    out,
		Workers:   workers,
	}, zap.NewNop())
}

func mixedBatch(t *testing.T) batch.Batch {
	var records []frame.Record
	for seq := uint64(0); seq < 6; seq++ {
		rec := jpegFrame(t, seq)
		if seq == 2 || seq == 5 {
			rec.Data = []byte("not a jpeg")
		}
		records = append(records, rec)
	}
	return batch.Batch{Index: 0, Records: records}
}

func TestProcessBatchOneOutcomePerFrame(t *testing.T) {
	stage := newTestStage(t, stubSegmenter{fn: fullMask}, 1)
	b := mixedBatch(t)

	outcomes := stage.ProcessBatch(context.Background(), b)
	if len(outcomes) != len(b.Records) {
		t.Fatalf("expected %d outcomes, got %d", len(b.Records), len(outcomes))
	}

	succeeded, failed := frame.Tally(outcomes)
	if succeeded != 4 || failed != 2 {
		t.Errorf("expected 4 succeeded and 2 failed, got %d and %d", succeeded, failed)
	}

	for i, o := range outcomes {
		if o.Seq != b.Records[i].Seq {
			t.Errorf("outcome %d: expected seq %d, got %d", i, b.Records[i].Seq, o.Seq)
		}
		if o.Seq == 2 || o.Seq == 5 {
			if o.OK() || o.Error != DetailDecode {
				t.Errorf("seq %d: expected decode error failure, got %+v", o.Seq, o)
			}
			if stage.output.Exists(o.Seq) {
				t.Errorf("seq %d: failed frame must not leave a file", o.Seq)
			}
			continue
		}
		if !o.OK() {
			t.Errorf("seq %d: expected success, got %+v", o.Seq, o)
			continue
		}
		if _, err := os.Stat(o.OutputPath); err != nil {
			t.Errorf("seq %d: output missing: %v", o.Seq, err)
		}
		if o.OutputPath != stage.output.PathFor(o.Seq) {
			t.Errorf("seq %d: unexpected path %s", o.Seq, o.OutputPath)
		}
	}
}

func TestProcessBatchReplacesBackground(t *testing.T) {
	stage := newTestStage(t, stubSegmenter{fn: fullMask}, 1)
	outcomes := stage.ProcessBatch(context.Background(), batch.Batch{Records: []frame.Record{jpegFrame(t, 0)}})
	if !outcomes[0].OK() {
		t.Fatalf("expected success, got %+v", outcomes[0])
	}

	img, err := imaging.Open(outcomes[0].OutputPath)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	r, g, b, _ := img.At(8, 6).RGBA()
	for _, c := range []uint32{r >> 8, g >> 8, b >> 8} {
		if c < 182 || c > 202 {
			t.Fatalf("expected replaced pixel near gray 192, got %d,%d,%d", r>>8, g>>8, b>>8)
		}
	}
}

func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	b := mixedBatch(t)
	seq := newTestStage(t, stubSegmenter{fn: fullMask}, 1).ProcessBatch(context.Background(), b)
	par := newTestStage(t, stubSegmenter{fn: fullMask}, 4).ProcessBatch(context.Background(), b)

	if len(seq) != len(par) {
		t.Fatalf("outcome count differs: %d vs %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Seq != par[i].Seq || seq[i].Status != par[i].Status || seq[i].Error != par[i].Error {
			t.Errorf("outcome %d differs: %+v vs %+v", i, seq[i], par[i])
		}
	}
}

func TestSegmenterFailures(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(image.Image) (*segment.Mask, error)
		detail string
	}{
		{
			name:   "segmenter error",
			fn:     func(image.Image) (*segment.Mask, error) { return nil, errors.New("model unavailable") },
			detail: ErrSegment.Error(),
		},
		{
			name:   "mask mismatch",
			fn:     func(image.Image) (*segment.Mask, error) { return segment.NewMask(1, 1), nil },
			detail: ErrMaskMismatch.Error(),
		},
		{
			name:   "panic",
			fn:     func(image.Image) (*segment.Mask, error) { panic("boom") },
			detail: "panic: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := newTestStage(t, stubSegmenter{fn: tt.fn}, 2)
			b := batch.Batch{Records: []frame.Record{jpegFrame(t, 0), jpegFrame(t, 1)}}

			outcomes := stage.ProcessBatch(context.Background(), b)
			if len(outcomes) != 2 {
				t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
			}
			for _, o := range outcomes {
				if o.OK() {
					t.Errorf("seq %d: expected failure", o.Seq)
				}
				if !strings.Contains(o.Error, tt.detail) {
					t.Errorf("seq %d: expected detail containing %q, got %q", o.Seq, tt.detail, o.Error)
				}
			}
		})
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	stage := newTestStage(t, stubSegmenter{fn: fullMask}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := stage.ProcessBatch(ctx, mixedBatch(t))
	if len(outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Error != DetailCancelled {
			t.Errorf("seq %d: expected cancelled, got %+v", o.Seq, o)
		}
	}
}
