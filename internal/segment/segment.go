// Package segment defines the segmentation capability and the compositing
// policy that turns a confidence mask into a background-replaced frame.
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultThreshold is the mask confidence at which a pixel gets replaced.
const DefaultThreshold = 0.2

var (
	ErrMaskMismatch = errors.New("mask does not match image size")
	ErrInvalidColor = errors.New("invalid color")
)

// DefaultColor is the gray used for replaced pixels.
var DefaultColor = color.NRGBA{R: 192, G: 192, B: 192, A: 255}

// Mask holds one category confidence value per pixel in row-major order.
type Mask struct {
	Width  int
	Height int
	Values []float32
}

// NewMask allocates a zeroed mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Values: make([]float32, width*height)}
}

// At returns the confidence at (x, y).
func (m *Mask) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Set stores the confidence at (x, y).
func (m *Mask) Set(x, y int, v float32) {
	m.Values[y*m.Width+x] = v
}

// Segmenter produces a per-pixel confidence mask for an image.
// Implementations must be safe for concurrent use.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*Mask, error)
}

// Direction selects which side of the threshold is replaced.
type Direction string

const (
	ReplaceAbove Direction = "above" // mask > threshold is replaced
	ReplaceBelow Direction = "below" // mask < threshold is replaced
)

// ParseDirection validates a configured direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case ReplaceAbove, ReplaceBelow:
		return d, nil
	default:
		return "", fmt.Errorf("invalid mask policy %q (must be 'above' or 'below')", s)
	}
}

// Policy decides per pixel whether to keep the original or the replacement color.
type Policy struct {
	Threshold float32
	Direction Direction
	Color     color.NRGBA
}

// DefaultPolicy replaces every pixel whose mask value exceeds 0.2 with gray.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Direction: ReplaceAbove, Color: DefaultColor}
}

// Replace reports whether a pixel with mask value v is replaced. The
// comparison is strict either way, so v equal to Threshold always keeps the
// original pixel.
func (p Policy) Replace(v float32) bool {
	if p.Direction == ReplaceBelow {
		return v < p.Threshold
	}
	return v > p.Threshold
}

// Composite applies the policy to img using mask and returns a new image.
func (p Policy) Composite(img image.Image, mask *Mask) (*image.NRGBA, error) {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	if mask == nil || mask.Width != w || mask.Height != h || len(mask.Values) != w*h {
		return nil, fmt.Errorf("%w: image %dx%d", ErrMaskMismatch, w, h)
	}

	for y := 0; y < h; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			if !p.Replace(mask.At(x, y)) {
				continue
			}
			px := row[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = p.Color.R, p.Color.G, p.Color.B, p.Color.A
		}
	}
	return out, nil
}

// ParseColor accepts "#rrggbb" or "r,g,b".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 {
			return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	var rgb [3]uint8
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		rgb[i] = uint8(v)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}
