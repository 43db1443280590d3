// Package classifier turns landmark geometry and a calibration profile into posture,
// distance and behaviour signals. Every sub-classifier runs on its own: missing
// landmarks for one yield Unknown for that field only.
package classifier

import (
	"fmt"
	"sync"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// Classifier runs the sub-classifiers over a frame.
type Classifier struct {
	mu     sync.RWMutex
	th     Thresholds
	logger *zap.Logger
}

// New creates a classifier.
func New(th Thresholds, logger *zap.Logger) *Classifier {
	return &Classifier{
		th:     th,
		logger: logger,
	}
}

// SetThresholds swaps the thresholds used by later calls.
func (c *Classifier) SetThresholds(th Thresholds) {
	c.mu.Lock()
	c.th = th
	c.mu.Unlock()
}

// Thresholds returns the active thresholds.
func (c *Classifier) Thresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.th
}

// Classify produces the result for one frame. A nil profile yields an uncalibrated
// result: distance and posture stay Unknown while behaviour and framing still run.
func (c *Classifier) Classify(f *models.LandmarkFrame, profile *models.CalibrationProfile) models.ClassificationResult {
	th := c.Thresholds()
	res := models.ClassificationResult{
		Posture:    models.PostureUnknown,
		Calibrated: profile != nil,
	}
	if f == nil {
		return res
	}
	res.FrameSeq = f.Seq
	res.Timestamp = f.Timestamp

	c.guard("distance", func() {
		if d, ok := EstimateDistance(f, profile, th); ok {
			res.DistanceCM = &d
		}
	})
	c.guard("posture", func() {
		p := ClassifyPosture(f, profile, th)
		res.Posture = p.State
		res.PostureReasons = p.Reasons
	})
	c.guard("face_touch", func() {
		res.Behavior.FaceTouch, res.Behavior.FaceTouchKnown = DetectFaceTouch(f, th)
	})
	c.guard("nail_biting", func() {
		res.Behavior.NailBiting, res.Behavior.NailBitingKnown = DetectNailBiting(f, th)
	})
	c.guard("framing", func() {
		res.Framing = AssessFraming(f, th)
	})
	return res
}

// guard runs fn and turns a panic into a logged Unknown for that field.
func (c *Classifier) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Sub-classifier failed",
				zap.String("classifier", name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
