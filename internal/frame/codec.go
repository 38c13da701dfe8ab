package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxPayloadSize is the largest JPEG payload a record is expected to carry.
	MaxPayloadSize = 1 << 20

	// DefaultMaxRecordSize bounds a single wire line: a MaxPayloadSize payload
	// after base64 growth, plus room for the JSON envelope.
	DefaultMaxRecordSize = (MaxPayloadSize+2)/3*4 + envelopeSize

	envelopeSize = 1024
)

var (
	ErrIncomplete    = errors.New("incomplete wire record")
	ErrMalformed     = errors.New("malformed wire record")
	ErrInvalidRecord = errors.New("invalid frame record")
)

// wireRecord is the JSON shape of one line on the stream.
// []byte fields are carried as standard base64 strings by encoding/json.
type wireRecord struct {
	FrameID   *uint64 `json:"frame_id"`
	Timestamp float64 `json:"timestamp"`
	Width     uint32  `json:"width"`
	Height    uint32  `json:"height"`
	Data      []byte  `json:"data"`
}

// Encode serializes rec into a newline-terminated wire record.
func Encode(rec Record) ([]byte, error) {
	if len(rec.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidRecord)
	}
	if rec.Width == 0 || rec.Height == 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidRecord, rec.Width, rec.Height)
	}

	seq := rec.Seq
	line, err := json.Marshal(wireRecord{
		FrameID:   &seq,
		Timestamp: rec.Timestamp,
		Width:     rec.Width,
		Height:    rec.Height,
		Data:      rec.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal wire record: %w", err)
	}
	return append(line, '\n'), nil
}

// Decode parses the first complete record in buf.
//
// It returns the record and the number of bytes consumed through its newline.
// When buf holds no newline it returns ErrIncomplete; the trailing fragment is
// never consumed. A line that is not a valid record is consumed and reported
// as ErrMalformed. Blank lines are consumed silently, so n may be non-zero
// even alongside ErrIncomplete.
func Decode(buf []byte) (Record, int, error) {
	consumed := 0
	for {
		idx := bytes.IndexByte(buf[consumed:], '\n')
		if idx < 0 {
			return Record{}, consumed, ErrIncomplete
		}

		line := bytes.TrimSpace(buf[consumed : consumed+idx])
		consumed += idx + 1
		if len(line) == 0 {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			return Record{}, consumed, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return rec, consumed, nil
	}
}

func parseLine(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, err
	}
	if w.FrameID == nil {
		return Record{}, errors.New("missing frame_id")
	}
	if w.Width == 0 || w.Height == 0 {
		return Record{}, fmt.Errorf("invalid dimensions %dx%d", w.Width, w.Height)
	}
	if len(w.Data) == 0 {
		return Record{}, errors.New("missing data")
	}

	return Record{
		Seq:       *w.FrameID,
		Timestamp: w.Timestamp,
		Width:     w.Width,
		Height:    w.Height,
		Data:      w.Data,
	}, nil
}
