// Package imgcodec encodes and decodes frame payloads.
package imgcodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Codec converts between in-memory images and encoded bytes.
type Codec interface {
	Encode(img image.Image) ([]byte, error)
	Decode(data []byte) (image.Image, error)
	Ext() string
}

// ImagingCodec is a Codec backed by disintegration/imaging.
type ImagingCodec struct {
	format  imaging.Format
	ext     string
	quality int
}

// Compile-time interface verification
var _ Codec = (*ImagingCodec)(nil)

// New creates a codec for an extension such as "jpg" or "png".
// quality applies to JPEG only (1-100).
func New(ext string, quality int) (*ImagingCodec, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if quality < 1 || quality > 100 {
		quality = 95
	}
	return &ImagingCodec{format: format, ext: ext, quality: quality}, nil
}

// JPEG returns a JPEG codec at the given quality.
func JPEG(quality int) *ImagingCodec {
	c, _ := New("jpg", quality)
	return c
}

func (c *ImagingCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, c.format, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.ext, err)
	}
	return buf.Bytes(), nil
}

func (c *ImagingCodec) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Ext returns the file extension without the leading dot.
func (c *ImagingCodec) Ext() string {
	return c.ext
}
