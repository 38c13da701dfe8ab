package segment

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// BorderSegmenter estimates the background as the mean color of the image
// border and scores each pixel by how close it is to that color. A pixel that
// matches the border exactly scores 1; one farther than Tolerance scores 0.
//
// It stands in for a learned model when none is configured.
type BorderSegmenter struct {
	Tolerance float64 // RGB euclidean distance, default 60
	Margin    int     // border thickness in pixels, default 4
}

// Compile-time interface verification
var _ Segmenter = (*BorderSegmenter)(nil)

func NewBorderSegmenter(tolerance float64) *BorderSegmenter {
	return &BorderSegmenter{Tolerance: tolerance}
}

func (s *BorderSegmenter) Segment(ctx context.Context, img image.Image) (*Mask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = 60
	}
	margin := s.Margin
	if margin <= 0 {
		margin = 4
	}

	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	mask := NewMask(w, h)
	if w == 0 || h == 0 {
		return mask, nil
	}

	bg := borderMean(src, w, h, margin)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			dr := float64(row[x*4]) - bg[0]
			dg := float64(row[x*4+1]) - bg[1]
			db := float64(row[x*4+2]) - bg[2]
			dist := math.Sqrt(dr*dr + dg*dg + db*db)

			v := 1 - dist/tol
			if v < 0 {
				v = 0
			}
			mask.Set(x, y, float32(v))
		}
	}
	return mask, nil
}

func borderMean(img *image.NRGBA, w, h, margin int) [3]float64 {
	var sum [3]float64
	var n float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			if x >= margin && x < w-margin && y >= margin && y < h-margin {
				continue
			}
			sum[0] += float64(row[x*4])
			sum[1] += float64(row[x*4+1])
			sum[2] += float64(row[x*4+2])
			n++
		}
	}
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}
