// Package capture defines the camera and detector collaborators and keeps a
// capture device open across transient failures.
package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

var (
	// ErrNoFrame is a transient read miss; the caller should try again.
	ErrNoFrame = errors.New("no frame")
	// ErrDeviceUnavailable means the device cannot be opened or stopped delivering.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrRetriesExhausted is wrapped together with ErrDeviceUnavailable once the
	// bounded retry policy gives up.
	ErrRetriesExhausted = errors.New("capture retries exhausted")
	// ErrEndOfStream means a finite source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Frame is one raw encoded image.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Source yields frames from an opened device.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Opener opens a Source. It returns an error wrapping ErrDeviceUnavailable when
// the device is absent.
type Opener func(ctx context.Context) (Source, error)

// Detector turns a frame into landmarks. A nil frame with a nil error means
// nothing was detected; errors are reserved for model or transport failure.
type Detector interface {
	Detect(ctx context.Context, f Frame) (*models.LandmarkFrame, error)
}

// WindowState reports whether the presentation window is minimized.
type WindowState interface {
	Minimized() bool
}

// WindowFlag is a WindowState set by whatever owns the window.
type WindowFlag struct {
	minimized atomic.Bool
}

// Minimized implements WindowState.
func (w *WindowFlag) Minimized() bool {
	return w.minimized.Load()
}

// SetMinimized updates the flag.
func (w *WindowFlag) SetMinimized(v bool) {
	w.minimized.Store(v)
}
