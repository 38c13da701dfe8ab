package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Directory replays image files from a directory in name order, resized to
// the configured frame size.
type Directory struct {
	files  []string
	next   int
	loop   bool
	width  int
	height int
}

var _ Source = (*Directory)(nil)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true}

func NewDirectory(dir string, width, height int, loop bool) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnavailable, dir)
	}
	sort.Strings(files)

	return &Directory{files: files, loop: loop, width: width, height: height}, nil
}

func (d *Directory) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.files) {
		if !d.loop {
			return nil, ErrExhausted
		}
		d.next = 0
	}

	path := d.files[d.next]
	d.next++

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if d.width > 0 && d.height > 0 {
		return imaging.Fill(img, d.width, d.height, imaging.Center, imaging.Lanczos), nil
	}
	return img, nil
}

// Len returns the number of frames in one pass.
func (d *Directory) Len() int {
	return len(d.files)
}

func (d *Directory) Close() error {
	return nil
}
