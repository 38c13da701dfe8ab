package segment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func subjectOnBackground() *image.NRGBA {
	img := imaging.New(40, 30, color.NRGBA{R: 20, G: 60, B: 200, A: 255})
	subject := imaging.New(10, 10, color.NRGBA{R: 230, G: 30, B: 30, A: 255})
	return imaging.Paste(img, subject, image.Pt(15, 10))
}

func TestBorderSegmenterScoresBackgroundHigh(t *testing.T) {
	mask, err := NewBorderSegmenter(60).Segment(context.Background(), subjectOnBackground())
	if err != nil {
		t.Fatal(err)
	}
	if mask.Width != 40 || mask.Height != 30 {
		t.Fatalf("expected 40x30 mask, got %dx%d", mask.Width, mask.Height)
	}
	if v := mask.At(0, 0); v < 0.9 {
		t.Errorf("background pixel should score near 1, got %f", v)
	}
	if v := mask.At(20, 15); v != 0 {
		t.Errorf("subject pixel should score 0, got %f", v)
	}
}

func TestCompositeReplaceAbove(t *testing.T) {
	img := subjectOnBackground()
	mask, _ := NewBorderSegmenter(60).Segment(context.Background(), img)

	out, err := DefaultPolicy().Composite(img, mask)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.NRGBAAt(0, 0); got != DefaultColor {
		t.Errorf("background should be replaced with gray, got %v", got)
	}
	if got := out.NRGBAAt(20, 15); got != img.NRGBAAt(20, 15) {
		t.Errorf("subject should keep its pixels, got %v", got)
	}
	if img.NRGBAAt(0, 0) == DefaultColor {
		t.Error("composite must not modify the source image")
	}
}

func TestCompositeReplaceBelow(t *testing.T) {
	img := subjectOnBackground()
	mask, _ := NewBorderSegmenter(60).Segment(context.Background(), img)

	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	policy := Policy{Threshold: DefaultThreshold, Direction: ReplaceBelow, Color: white}
	out, err := policy.Composite(img, mask)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.NRGBAAt(20, 15); got != white {
		t.Errorf("subject should be replaced, got %v", got)
	}
	if got := out.NRGBAAt(0, 0); got != img.NRGBAAt(0, 0) {
		t.Errorf("background should be kept, got %v", got)
	}
}

func TestCompositeThresholdIsStrict(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	mask := NewMask(2, 1)
	mask.Set(0, 0, DefaultThreshold)
	mask.Set(1, 0, 0.21)

	out, err := DefaultPolicy().Composite(img, mask)
	if err != nil {
		t.Fatal(err)
	}
	if out.NRGBAAt(0, 0) == DefaultColor {
		t.Error("value equal to the threshold must be kept")
	}
	if out.NRGBAAt(1, 0) != DefaultColor {
		t.Error("value above the threshold must be replaced")
	}
}

func TestCompositeMaskMismatch(t *testing.T) {
	img := imaging.New(4, 4, color.Black)
	if _, err := DefaultPolicy().Composite(img, NewMask(3, 4)); !errors.Is(err, ErrMaskMismatch) {
		t.Errorf("expected ErrMaskMismatch, got %v", err)
	}
	if _, err := DefaultPolicy().Composite(img, nil); !errors.Is(err, ErrMaskMismatch) {
		t.Errorf("expected ErrMaskMismatch for nil mask, got %v", err)
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#c0c0c0":     DefaultColor,
		"192,192,192": DefaultColor,
		" 0, 255, 10": {R: 0, G: 255, B: 10, A: 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}

	for _, bad := range []string{"#fff", "red", "1,2", "1,2,300"} {
		if _, err := ParseColor(bad); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("%q: expected ErrInvalidColor, got %v", bad, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("Below"); err != nil || d != ReplaceBelow {
		t.Errorf("expected below, got %q %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
