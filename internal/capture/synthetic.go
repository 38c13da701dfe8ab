package capture

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// Synthetic draws a moving subject on a flat backdrop. The backdrop is a
// single color so a border-based segmenter can separate it cleanly.
type Synthetic struct {
	width  int
	height int
	frame  int
}

var _ Source = (*Synthetic)(nil)

func NewSynthetic(width, height int) *Synthetic {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 240
	}
	return &Synthetic{width: width, height: height}
}

func (s *Synthetic) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := float64(s.width), float64(s.height)
	dc := gg.NewContext(s.width, s.height)
	dc.SetRGB(0.1, 0.35, 0.75)
	dc.Clear()

	// subject sways left and right across the middle third
	phase := float64(s.frame) / 20
	cx := w/2 + math.Sin(phase)*w/4
	cy := h / 2
	r := math.Min(w, h) / 5

	dc.SetRGB(0.9, 0.75, 0.6)
	dc.DrawCircle(cx, cy-r*0.8, r*0.6)
	dc.Fill()
	dc.SetRGB(0.85, 0.2, 0.2)
	dc.DrawRoundedRectangle(cx-r, cy-r*0.2, 2*r, 1.6*r, r/4)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.DrawString(fmt.Sprintf("frame: %d", s.frame), 6, h-6)

	s.frame++
	return imaging.Clone(dc.Image()), nil
}

func (s *Synthetic) Close() error {
	return nil
}
