package classifier

import "github.com/EricW9888/ScreenGuardian/internal/models"

// AssessFraming reports whether the user is fully in frame. A frame is partial when
// the face is visible but the eyes or shoulders are not.
func AssessFraming(f *models.LandmarkFrame, th Thresholds) models.Framing {
	out := models.Framing{FacePresent: f.HasFace()}
	if !out.FacePresent {
		return out
	}
	_, _, eyes := eyeCentres(f)
	_, _, sh := shoulders(f, th.ShoulderVisibility)
	out.Partial = !eyes || !sh
	if g, ok := MeasureGeometry(f, th); ok {
		out.BodyTurned = g.BodyTurned(th)
	}
	return out
}
