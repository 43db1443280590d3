package classifier

import (
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

const (
	imgW = 640.0
	imgH = 480.0
)

// scene describes a synthetic upper-body frame in pixels.
type scene struct {
	faceCX, faceCY float64
	faceW          float64
	ipd            float64
	eyeDY          float64 // right eye lower than left by this many px
	shoulderY      float64
	shoulderSpan   float64
	noShoulders    bool
	noFace         bool
	hands          [][]models.Point
}

func uprightScene() scene {
	return scene{
		faceCX:       320,
		faceCY:       150,
		faceW:        100,
		ipd:          60,
		shoulderY:    300,
		shoulderSpan: 300,
	}
}

func norm(x, y float64) models.Point {
	return models.Point{X: x / imgW, Y: y / imgH, Visibility: 0.99}
}

func (s scene) frame() *models.LandmarkFrame {
	f := &models.LandmarkFrame{
		Seq:       1,
		Timestamp: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		Width:     int(imgW),
		Height:    int(imgH),
	}
	if !s.noFace {
		face := make([]models.Point, 468)
		for i := range face {
			face[i] = norm(s.faceCX, s.faceCY)
		}
		// extremes define the face box: 100 px tall, faceW wide
		face[234] = norm(s.faceCX-s.faceW/2, s.faceCY)
		face[454] = norm(s.faceCX+s.faceW/2, s.faceCY)
		face[10] = norm(s.faceCX, s.faceCY-50)
		face[152] = norm(s.faceCX, s.faceCY+50)
		eyeY := s.faceCY - 15
		for _, i := range LeftEyeIdx {
			face[i] = norm(s.faceCX-s.ipd/2, eyeY)
		}
		for _, i := range RightEyeIdx {
			face[i] = norm(s.faceCX+s.ipd/2, eyeY+s.eyeDY)
		}
		face[NoseIdx] = norm(s.faceCX, s.faceCY)
		mouthY := s.faceCY + 30
		face[13] = norm(s.faceCX, mouthY-5)
		face[14] = norm(s.faceCX, mouthY+5)
		face[78] = norm(s.faceCX-10, mouthY)
		face[308] = norm(s.faceCX+10, mouthY)
		face[311] = norm(s.faceCX+5, mouthY-4)
		face[312] = norm(s.faceCX-5, mouthY-4)
		f.Face = face
	}
	if !s.noShoulders {
		pose := make([]models.Point, 33)
		pose[LeftShoulderIdx] = norm(s.faceCX+s.shoulderSpan/2, s.shoulderY)
		pose[RightShoulderIdx] = norm(s.faceCX-s.shoulderSpan/2, s.shoulderY)
		f.Pose = pose
	}
	f.Hands = s.hands
	return f
}

// hand builds a hand whose points all sit at the wrist except the index finger.
func hand(wrist, indexJoint, indexTip models.PixelPoint, tipZ float64) []models.Point {
	pts := make([]models.Point, 21)
	for i := range pts {
		pts[i] = norm(wrist.X, wrist.Y)
	}
	pts[6] = norm(indexJoint.X, indexJoint.Y)
	pts[8] = norm(indexTip.X, indexTip.Y)
	pts[8].Z = tipZ
	return pts
}

func neutralProfile() *models.CalibrationProfile {
	return &models.CalibrationProfile{
		ReferenceObjectWidthMM: 63,
		ReferencePixelWidth:    700,
		Neutral: &models.NeutralPose{
			VerticalRatio: 1.2,
			DepthRatio:    100.0 / 300.0,
			EyeTiltDeg:    0,
			NeckLength:    1.2,
		},
	}
}
