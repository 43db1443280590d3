package models

import "time"

// PostureState is the discrete posture classification.
type PostureState string

const (
	PostureUnknown   PostureState = "unknown"
	PostureGood      PostureState = "good"
	PostureSlouching PostureState = "slouching"
	PostureLeaning   PostureState = "leaning"
)

// Bad reports whether the state should count towards a posture alert.
func (s PostureState) Bad() bool {
	return s == PostureSlouching || s == PostureLeaning
}

// BehaviorFlags are the heuristic hand-to-face signals. Known is false when hands or
// the face were absent, in which case the flags are meaningless.
type BehaviorFlags struct {
	FaceTouch       bool `json:"face_touch"`
	FaceTouchKnown  bool `json:"face_touch_known"`
	NailBiting      bool `json:"nail_biting"`
	NailBitingKnown bool `json:"nail_biting_known"`
}

// Framing describes how well the user is positioned in the frame.
type Framing struct {
	FacePresent bool `json:"face_present"`
	Partial     bool `json:"partial"`
	BodyTurned  bool `json:"body_turned"`
}

// ClassificationResult is the per-frame output of the classifiers.
type ClassificationResult struct {
	FrameSeq       uint64        `json:"frame_seq"`
	Timestamp      time.Time     `json:"timestamp"`
	Calibrated     bool          `json:"calibrated"`
	Posture        PostureState  `json:"posture"`
	PostureReasons []string      `json:"posture_reasons,omitempty"`
	DistanceCM     *float64      `json:"distance_cm,omitempty"`
	Behavior       BehaviorFlags `json:"behavior"`
	Framing        Framing       `json:"framing"`
}

// DistanceKnown reports whether a distance estimate is available.
func (r *ClassificationResult) DistanceKnown() bool {
	return r != nil && r.DistanceCM != nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r ClassificationResult) Clone() ClassificationResult {
	out := r
	if r.PostureReasons != nil {
		out.PostureReasons = append([]string(nil), r.PostureReasons...)
	}
	if r.DistanceCM != nil {
		d := *r.DistanceCM
		out.DistanceCM = &d
	}
	return out
}
