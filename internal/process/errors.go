package process

import (
	"errors"

	"github.com/dgnsrekt/segstream/internal/segment"
)

var (
	ErrDecode  = errors.New("decode error")
	ErrSegment = errors.New("segmentation failed")
	ErrWrite   = errors.New("write failed")

	ErrMaskMismatch = segment.ErrMaskMismatch
)

// Outcome details for failures that carry no further cause.
const (
	DetailDecode    = "decode error"
	DetailCancelled = "cancelled"
)
