// Package capture provides frame sources for the camera producer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrUnavailable means the source could not be opened.
	ErrUnavailable = errors.New("capture source unavailable")
	// ErrExhausted means a finite source has no more frames.
	ErrExhausted = errors.New("capture source exhausted")
)

// Source yields one image per Capture call.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// Options selects and sizes a source.
type Options struct {
	Kind      string // "synthetic" or "directory"
	Directory string
	Loop      bool
	Width     int
	Height    int
}

// Open builds the source named by opts.Kind.
func Open(opts Options) (Source, error) {
	switch opts.Kind {
	case "", "synthetic":
		return NewSynthetic(opts.Width, opts.Height), nil
	case "directory":
		return NewDirectory(opts.Directory, opts.Width, opts.Height, opts.Loop)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrUnavailable, opts.Kind)
	}
}
