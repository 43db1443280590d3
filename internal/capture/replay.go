package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ReplaySource serves the image files of a directory in name order, for headless
// runs and reproducing sessions.
type ReplaySource struct {
	files []string
	next  int
	loop  bool
	seq   uint64
	now   func() time.Time
}

// OpenReplay returns an Opener over the .jpg/.jpeg/.png files in dir.
func OpenReplay(dir string, loop bool) Opener {
	return func(ctx context.Context) (Source, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".jpg", ".jpeg", ".png":
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: no images in %s", ErrDeviceUnavailable, dir)
		}
		sort.Strings(files)
		return &ReplaySource{files: files, loop: loop, now: time.Now}, nil
	}
}

// Next implements Source. A finished non-looping replay returns ErrEndOfStream.
func (r *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if r.next >= len(r.files) {
		if !r.loop {
			return Frame{}, ErrEndOfStream
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	r.seq++
	return Frame{Seq: r.seq, Timestamp: r.now(), Data: data}, nil
}

// Close implements Source.
func (r *ReplaySource) Close() error {
	return nil
}
