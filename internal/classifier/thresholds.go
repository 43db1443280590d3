package classifier

import "github.com/EricW9888/ScreenGuardian/internal/config"

// Thresholds are the tunable classification limits.
type Thresholds struct {
	ShoulderVisibility  float64
	VerticalThreshold   float64 // slouch when vertical ratio falls below this fraction of neutral
	DepthThreshold      float64 // lean when depth ratio exceeds neutral by this factor
	EyeTiltThreshold    float64 // normalised vertical eye offset
	EyeTiltDegrees      float64
	HeadTwistDegrees    float64
	NeckThreshold       float64
	HorizontalOffset    float64
	BodyTurnRatio       float64 // shoulder span / face width below this means turned away
	MinPixelIPD         float64
	NailContactMarginPx float64
	NailDepthThreshold  float64
	NailCurlRatio       float64
	FaceTouchMarginPx   float64
	MouthBoxPaddingPx   float64
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShoulderVisibility:  0.5,
		VerticalThreshold:   0.70,
		DepthThreshold:      1.22,
		EyeTiltThreshold:    0.08,
		EyeTiltDegrees:      10,
		HeadTwistDegrees:    12,
		NeckThreshold:       0.55,
		HorizontalOffset:    0.15,
		BodyTurnRatio:       1.15 * 0.78,
		MinPixelIPD:         2,
		NailContactMarginPx: 4,
		NailDepthThreshold:  0.1,
		NailCurlRatio:       1.15,
		FaceTouchMarginPx:   6,
		MouthBoxPaddingPx:   10,
	}
}

// ThresholdsFromConfig copies the classifier section of the configuration.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	c := cfg.Classifier
	return Thresholds{
		ShoulderVisibility:  c.ShoulderVisibility,
		VerticalThreshold:   c.VerticalThreshold,
		DepthThreshold:      c.DepthThreshold,
		EyeTiltThreshold:    c.EyeTiltThreshold,
		EyeTiltDegrees:      c.EyeTiltDegrees,
		HeadTwistDegrees:    c.HeadTwistDegrees,
		NeckThreshold:       c.NeckThreshold,
		HorizontalOffset:    c.HorizontalOffset,
		BodyTurnRatio:       c.BodyTurnRatio,
		MinPixelIPD:         c.MinPixelIPD,
		NailContactMarginPx: c.NailContactMarginPx,
		NailDepthThreshold:  c.NailDepthThreshold,
		NailCurlRatio:       c.NailCurlRatio,
		FaceTouchMarginPx:   c.FaceTouchMarginPx,
		MouthBoxPaddingPx:   c.MouthBoxPaddingPx,
	}
}
