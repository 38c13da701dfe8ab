// Package journal persists frame outcomes as zstd-compressed JSON lines.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/segstream/internal/frame"
)

var ErrClosed = errors.New("journal closed")

// Writer appends outcomes to a single compressed JSONL file.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	zw     *zstd.Encoder
	enc    *json.Encoder
	count  int
	closed bool
}

// Create truncates or creates the journal at path.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &Writer{file: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// Record appends one line per outcome. Lines are flushed to the file at the
// end of each call so a crash loses at most the batch being written.
func (w *Writer) Record(outcomes []frame.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	for _, o := range outcomes {
		if err := w.enc.Encode(o); err != nil {
			return fmt.Errorf("writing outcome %d: %w", o.Seq, err)
		}
		w.count++
	}
	if err := w.zw.Flush(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	return nil
}

// Count returns the number of outcomes written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Read loads every outcome from a journal file.
func Read(path string) ([]frame.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads compressed JSONL outcomes from r.
func Decode(r io.Reader) ([]frame.Outcome, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zr.Close()

	var outcomes []frame.Outcome
	scanner := bufio.NewScanner(zr)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var o frame.Outcome
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			return outcomes, fmt.Errorf("line %d: %w", line, err)
		}
		outcomes = append(outcomes, o)
	}
	if err := scanner.Err(); err != nil {
		return outcomes, fmt.Errorf("reading journal: %w", err)
	}
	return outcomes, nil
}
