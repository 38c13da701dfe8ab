// Package output places processed frames on disk under deterministic names.
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

type Manager struct {
	dir string
	ext string
}

// NewManager creates dir if absent. ext is the file extension without a dot.
func NewManager(dir, ext string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Manager{dir: dir, ext: ext}, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

// FileName returns frame_{seq:06d}.{ext}. Sequences above 999999 widen naturally.
func (m *Manager) FileName(seq uint64) string {
	return fmt.Sprintf("frame_%06d.%s", seq, m.ext)
}

// PathFor returns the output path for a frame sequence number.
func (m *Manager) PathFor(seq uint64) string {
	return filepath.Join(m.dir, m.FileName(seq))
}

// Write stores data for seq and returns the final path. The bytes go to a
// temp file first and are renamed into place, so a reader never sees a
// partially written frame.
func (m *Manager) Write(seq uint64, data []byte) (string, error) {
	path := m.PathFor(seq)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	_, err = f.Write(data)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing frame: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return path, nil
}

// Exists reports whether an output file for seq is present.
func (m *Manager) Exists(seq uint64) bool {
	_, err := os.Stat(m.PathFor(seq))
	return err == nil
}
