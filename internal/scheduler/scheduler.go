// Package scheduler decides, frame by frame, whether detection and rendering run.
package scheduler

import (
	"sync"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Decision is the admission outcome for one frame.
type Decision struct {
	Seq    uint64
	Detect bool
	Render bool
}

// Scheduler implements the Resource Saver cadence. With Resource Saver on, detection
// runs on the first of every cadence frames; otherwise on every frame. Rendering is
// independent of detection and is skipped while the window is minimized.
//
// The last computed ClassificationResult is held in an explicit cell so skipped frames
// can reuse it.
type Scheduler struct {
	mu            sync.Mutex
	resourceSaver bool
	cadence       uint64
	counter       uint64
	last          *models.ClassificationResult
}

// New creates a scheduler. A cadence below 1 is treated as 1.
func New(resourceSaver bool, cadence int) *Scheduler {
	s := &Scheduler{}
	s.Configure(resourceSaver, cadence)
	return s
}

// Configure updates the policy in place; the frame counter is kept.
func (s *Scheduler) Configure(resourceSaver bool, cadence int) {
	if cadence < 1 {
		cadence = 1
	}
	s.mu.Lock()
	s.resourceSaver = resourceSaver
	s.cadence = uint64(cadence)
	s.mu.Unlock()
}

// Admit advances the frame counter and decides for the new frame.
func (s *Scheduler) Admit(minimized bool) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.counter
	s.counter++

	detect := true
	if s.resourceSaver && s.cadence > 1 {
		detect = seq%s.cadence == 0
	}
	return Decision{
		Seq:    seq,
		Detect: detect,
		Render: !minimized,
	}
}

// Record stores the result of a detection frame as the hold-over value.
func (s *Scheduler) Record(result models.ClassificationResult) {
	r := result.Clone()
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
}

// Last returns the held-over result, if any detection has completed.
func (s *Scheduler) Last() (models.ClassificationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.ClassificationResult{}, false
	}
	return s.last.Clone(), true
}

// Invalidate clears the hold-over value, e.g. after the capture device was reopened.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}
