package classifier

import "github.com/EricW9888/ScreenGuardian/internal/models"

// EstimateDistance returns the face-to-screen distance in cm from the interpupillary
// pixel width. ok is false without a profile, without both eyes, or when the eyes are
// too close together to measure.
func EstimateDistance(f *models.LandmarkFrame, profile *models.CalibrationProfile, th Thresholds) (float64, bool) {
	if profile == nil || profile.ReferencePixelWidth <= 0 || profile.ReferenceObjectWidthMM <= 0 {
		return 0, false
	}
	l, r, ok := eyeCentres(f)
	if !ok {
		return 0, false
	}
	measured := l.Dist(r)
	if measured <= th.MinPixelIPD || measured <= 0 {
		return 0, false
	}
	return DistanceFromPixels(profile, measured), true
}

// DistanceFromPixels applies the inverse-proportional pinhole model.
func DistanceFromPixels(profile *models.CalibrationProfile, measuredPx float64) float64 {
	return profile.DistanceScale() / measuredPx
}
