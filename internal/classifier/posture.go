package classifier

import (
	"errors"
	"math"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Posture reasons shown to the user.
const (
	ReasonSitUp          = "Sit up straight"
	ReasonLeanBack       = "Lean back"
	ReasonStraightenHead = "Straighten your head"
	ReasonLevelHead      = "Level your head"
	ReasonStraightenNeck = "Straighten your neck"
)

const eps = 1e-6

// shoulderTiltLimit disables the eye-tilt check when the whole upper body is tilted.
const shoulderTiltLimit = 15.0

// ErrMissingLandmarks is returned by MeasureNeutral when the frame cannot serve as a baseline.
var ErrMissingLandmarks = errors.New("required landmarks missing")

// Geometry is the scale-free posture measurement of one frame.
type Geometry struct {
	FaceWidth        float64
	ShoulderSpan     float64
	ShoulderAngleDeg float64
	VerticalRatio    float64
	DepthRatio       float64
	NeckLength       float64
	HorizontalOffset float64
	EyesFound        bool
	EyeTiltDeg       float64
	EyeTiltNorm      float64
}

// MeasureGeometry derives Geometry; ok is false without the face or both shoulders.
func MeasureGeometry(f *models.LandmarkFrame, th Thresholds) (Geometry, bool) {
	var g Geometry
	face, ok := f.FaceBounds()
	if !ok || face.W <= 1 {
		return g, false
	}
	ls, rs, ok := shoulders(f, th.ShoulderVisibility)
	if !ok {
		return g, false
	}

	head := face.Center()
	nose, ok := f.FacePixel(NoseIdx)
	if !ok {
		nose = head
	}
	mid := midpoint(ls, rs)

	g.FaceWidth = face.W
	g.ShoulderSpan = ls.Dist(rs)
	if ls.X <= rs.X {
		g.ShoulderAngleDeg = angleDeg(ls, rs)
	} else {
		g.ShoulderAngleDeg = angleDeg(rs, ls)
	}
	g.VerticalRatio = (mid.Y - head.Y) / (face.W*1.25 + eps)
	g.DepthRatio = face.W / (g.ShoulderSpan + eps)
	g.NeckLength = (mid.Y - nose.Y) / (face.W*1.25 + eps)
	g.HorizontalOffset = math.Abs(head.X-mid.X) / (face.W + eps)

	if le, re, ok := eyeCentres(f); ok {
		if le.X > re.X {
			le, re = re, le
		}
		g.EyesFound = true
		g.EyeTiltDeg = angleDeg(le, re)
		g.EyeTiltNorm = math.Abs(re.Y-le.Y) / (face.W*1.25 + eps)
	}
	return g, true
}

// BodyTurned reports whether the shoulders are too narrow relative to the face.
func (g Geometry) BodyTurned(th Thresholds) bool {
	return g.ShoulderSpan/(g.FaceWidth+eps) < th.BodyTurnRatio
}

// PostureOutcome is the posture part of a classification.
type PostureOutcome struct {
	State      models.PostureState
	Reasons    []string
	BodyTurned bool
}

// ClassifyPosture compares the frame against the neutral baseline. It is Unknown without
// a profile, without face or shoulders, or when the body is turned away. Without a
// captured neutral pose the absolute thresholds are used and the depth check is skipped.
func ClassifyPosture(f *models.LandmarkFrame, profile *models.CalibrationProfile, th Thresholds) PostureOutcome {
	out := PostureOutcome{State: models.PostureUnknown}
	g, ok := MeasureGeometry(f, th)
	if !ok {
		return out
	}
	if g.BodyTurned(th) {
		out.BodyTurned = true
		return out
	}
	if profile == nil {
		return out
	}

	vertLimit := th.VerticalThreshold
	neutralTilt := 0.0
	var depthLimit float64
	if n := profile.Neutral; n != nil {
		vertLimit = th.VerticalThreshold * n.VerticalRatio
		neutralTilt = n.EyeTiltDeg
		depthLimit = th.DepthThreshold * n.DepthRatio
	}

	slouch, lean := false, false
	add := func(reason string) {
		for _, r := range out.Reasons {
			if r == reason {
				return
			}
		}
		out.Reasons = append(out.Reasons, reason)
	}

	if g.VerticalRatio < vertLimit {
		slouch = true
		add(ReasonSitUp)
	}
	if depthLimit > 0 && g.DepthRatio > depthLimit {
		lean = true
		add(ReasonLeanBack)
	}
	if g.EyesFound {
		twist := math.Abs(g.EyeTiltDeg - neutralTilt)
		tilted := g.EyeTiltNorm > th.EyeTiltThreshold || twist > th.EyeTiltDegrees
		if math.Abs(g.ShoulderAngleDeg) > shoulderTiltLimit {
			tilted = false
		}
		if tilted {
			lean = true
			add(ReasonStraightenHead)
		}
		if twist > th.HeadTwistDegrees {
			lean = true
			add(ReasonLevelHead)
		}
	}
	if 1.0-g.NeckLength > th.NeckThreshold {
		slouch = true
		add(ReasonStraightenNeck)
	}
	if g.HorizontalOffset > th.HorizontalOffset {
		lean = true
		add(ReasonStraightenNeck)
	}

	switch {
	case slouch:
		out.State = models.PostureSlouching
	case lean:
		out.State = models.PostureLeaning
	default:
		out.State = models.PostureGood
	}
	return out
}

// MeasureNeutral captures a neutral pose baseline from a frame in which the user sits upright.
func MeasureNeutral(f *models.LandmarkFrame, th Thresholds) (models.NeutralPose, error) {
	g, ok := MeasureGeometry(f, th)
	if !ok || !g.EyesFound {
		return models.NeutralPose{}, ErrMissingLandmarks
	}
	if g.VerticalRatio <= 0 || g.DepthRatio <= 0 {
		return models.NeutralPose{}, errors.New("head must be above the shoulders")
	}
	return models.NeutralPose{
		VerticalRatio: g.VerticalRatio,
		DepthRatio:    g.DepthRatio,
		EyeTiltDeg:    g.EyeTiltDeg,
		NeckLength:    g.NeckLength,
	}, nil
}
