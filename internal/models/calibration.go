package models

import "time"

// NeutralPose is the user's upright reference captured during calibration.
type NeutralPose struct {
	VerticalRatio float64 `json:"vertical_ratio" validate:"gt=0"`
	DepthRatio    float64 `json:"depth_ratio" validate:"gt=0"`
	EyeTiltDeg    float64 `json:"eye_tilt_deg" validate:"gte=-90,lte=90"`
	NeckLength    float64 `json:"neck_length"`
}

// CalibrationProfile converts landmark geometry into real-world measurements.
// ReferenceObjectWidthMM is the real width of the tracked feature and ReferencePixelWidth
// is the camera's pixel scale for it (the focal length in pixels), so a feature observed
// at w pixels sits ReferenceObjectWidthMM/10 * ReferencePixelWidth / w centimetres away.
type CalibrationProfile struct {
	ReferenceObjectWidthMM float64      `json:"reference_object_width_mm" validate:"gt=0"`
	ReferencePixelWidth    float64      `json:"reference_pixel_width" validate:"gt=0"`
	Neutral                *NeutralPose `json:"neutral,omitempty"`
	CalibratedAt           time.Time    `json:"calibrated_at"`
}

// DistanceScale is the product used by the inverse-proportional distance estimate, in cm·px.
func (p *CalibrationProfile) DistanceScale() float64 {
	return p.ReferenceObjectWidthMM / 10.0 * p.ReferencePixelWidth
}
