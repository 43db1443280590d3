package classifier

import (
	"testing"

	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEstimateDistance_ReferenceScenario(t *testing.T) {
	s := uprightScene()
	s.ipd = 100
	profile := &models.CalibrationProfile{ReferenceObjectWidthMM: 85, ReferencePixelWidth: 200}

	d, ok := EstimateDistance(s.frame(), profile, DefaultThresholds())
	require.True(t, ok)
	assert.InDelta(t, 17.0, d, 0.05)
}

func TestEstimateDistance_InverseProportional(t *testing.T) {
	profile := &models.CalibrationProfile{ReferenceObjectWidthMM: 63, ReferencePixelWidth: 700}
	near := DistanceFromPixels(profile, 120)
	far := DistanceFromPixels(profile, 60)
	assert.InDelta(t, 2*near, far, 1e-9)
}

func TestEstimateDistance_Unknown(t *testing.T) {
	th := DefaultThresholds()
	profile := neutralProfile()

	_, ok := EstimateDistance(uprightScene().frame(), nil, th)
	assert.False(t, ok, "uncalibrated")

	noFace := uprightScene()
	noFace.noFace = true
	_, ok = EstimateDistance(noFace.frame(), profile, th)
	assert.False(t, ok, "no face")

	tiny := uprightScene()
	tiny.ipd = 1
	_, ok = EstimateDistance(tiny.frame(), profile, th)
	assert.False(t, ok, "eyes too close to measure")
}

func TestClassifyPosture(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name    string
		mutate  func(*scene)
		state   models.PostureState
		reasons []string
		turned  bool
	}{
		{
			name:   "upright",
			mutate: func(s *scene) {},
			state:  models.PostureGood,
		},
		{
			name:    "shoulders raised towards head",
			mutate:  func(s *scene) { s.shoulderY = 230 },
			state:   models.PostureSlouching,
			reasons: []string{ReasonSitUp},
		},
		{
			name:    "face grows relative to shoulders",
			mutate:  func(s *scene) { s.faceW = 140 },
			state:   models.PostureLeaning,
			reasons: []string{ReasonLeanBack},
		},
		{
			name:    "head tilted",
			mutate:  func(s *scene) { s.eyeDY = 20 },
			state:   models.PostureLeaning,
			reasons: []string{ReasonStraightenHead, ReasonLevelHead},
		},
		{
			name:   "body turned away",
			mutate: func(s *scene) { s.shoulderSpan = 60 },
			state:  models.PostureUnknown,
			turned: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := uprightScene()
			tt.mutate(&s)
			out := ClassifyPosture(s.frame(), neutralProfile(), th)
			assert.Equal(t, tt.state, out.State)
			assert.Equal(t, tt.reasons, out.Reasons)
			assert.Equal(t, tt.turned, out.BodyTurned)
		})
	}
}

func TestClassifyPosture_UnknownWithoutShouldersOrProfile(t *testing.T) {
	th := DefaultThresholds()

	s := uprightScene()
	s.noShoulders = true
	assert.Equal(t, models.PostureUnknown, ClassifyPosture(s.frame(), neutralProfile(), th).State)

	assert.Equal(t, models.PostureUnknown, ClassifyPosture(uprightScene().frame(), nil, th).State)
}

func TestClassifyPosture_WithoutNeutralUsesAbsoluteLimits(t *testing.T) {
	profile := neutralProfile()
	profile.Neutral = nil

	s := uprightScene()
	s.faceW = 140 // would be Leaning against a neutral depth baseline
	out := ClassifyPosture(s.frame(), profile, DefaultThresholds())
	assert.Equal(t, models.PostureGood, out.State)
}

func TestMeasureNeutral(t *testing.T) {
	n, err := MeasureNeutral(uprightScene().frame(), DefaultThresholds())
	require.NoError(t, err)
	assert.InDelta(t, 1.2, n.VerticalRatio, 1e-3)
	assert.InDelta(t, 1.0/3.0, n.DepthRatio, 1e-3)
	assert.InDelta(t, 0, n.EyeTiltDeg, 1e-6)

	s := uprightScene()
	s.noShoulders = true
	_, err = MeasureNeutral(s.frame(), DefaultThresholds())
	assert.ErrorIs(t, err, ErrMissingLandmarks)
}

func TestDetectNailBiting(t *testing.T) {
	th := DefaultThresholds()
	mouth := models.PixelPoint{X: 320, Y: 180}
	wrist := models.PixelPoint{X: 320, Y: 350}

	curled := uprightScene()
	curled.hands = [][]models.Point{hand(wrist, models.PixelPoint{X: 320, Y: 170}, mouth, 0)}
	biting, known := DetectNailBiting(curled.frame(), th)
	assert.True(t, known)
	assert.True(t, biting)

	straight := uprightScene()
	straight.hands = [][]models.Point{hand(wrist, models.PixelPoint{X: 320, Y: 260}, mouth, 0)}
	biting, known = DetectNailBiting(straight.frame(), th)
	assert.True(t, known)
	assert.False(t, biting, "an extended finger is not biting")

	behind := uprightScene()
	behind.hands = [][]models.Point{hand(wrist, models.PixelPoint{X: 320, Y: 170}, mouth, 0.5)}
	biting, _ = DetectNailBiting(behind.frame(), th)
	assert.False(t, biting, "fingertip behind the depth threshold")

	noHands := uprightScene()
	_, known = DetectNailBiting(noHands.frame(), th)
	assert.False(t, known)
}

func TestDetectFaceTouch(t *testing.T) {
	th := DefaultThresholds()
	wrist := models.PixelPoint{X: 320, Y: 350}

	s := uprightScene()
	s.hands = [][]models.Point{hand(wrist, models.PixelPoint{X: 300, Y: 200}, models.PixelPoint{X: 300, Y: 130}, 0)}
	touch, known := DetectFaceTouch(s.frame(), th)
	assert.True(t, known)
	assert.True(t, touch)

	away := uprightScene()
	away.hands = [][]models.Point{hand(wrist, models.PixelPoint{X: 500, Y: 300}, models.PixelPoint{X: 550, Y: 250}, 0)}
	touch, known = DetectFaceTouch(away.frame(), th)
	assert.True(t, known)
	assert.False(t, touch)
}

func TestAssessFraming(t *testing.T) {
	th := DefaultThresholds()

	full := AssessFraming(uprightScene().frame(), th)
	assert.True(t, full.FacePresent)
	assert.False(t, full.Partial)

	s := uprightScene()
	s.noShoulders = true
	partial := AssessFraming(s.frame(), th)
	assert.True(t, partial.Partial)

	gone := uprightScene()
	gone.noFace = true
	assert.Equal(t, models.Framing{}, AssessFraming(gone.frame(), th))
}

func TestClassify_PartialFailureIsolation(t *testing.T) {
	c := New(DefaultThresholds(), zap.NewNop())

	// Face only: posture needs shoulders, behaviour needs hands, distance still works.
	s := uprightScene()
	s.noShoulders = true
	res := c.Classify(s.frame(), neutralProfile())
	assert.True(t, res.Calibrated)
	assert.Equal(t, models.PostureUnknown, res.Posture)
	require.NotNil(t, res.DistanceCM)
	assert.InDelta(t, 6.3*700/60, *res.DistanceCM, 1e-6)
	assert.False(t, res.Behavior.FaceTouchKnown)
	assert.False(t, res.Behavior.NailBitingKnown)
	assert.True(t, res.Framing.Partial)

	// Pose and hands only: distance unknown, behaviour unknown (no face), posture unknown.
	s = uprightScene()
	s.noFace = true
	s.hands = [][]models.Point{hand(models.PixelPoint{X: 300, Y: 400}, models.PixelPoint{X: 300, Y: 380}, models.PixelPoint{X: 300, Y: 360}, 0)}
	res = c.Classify(s.frame(), neutralProfile())
	assert.Nil(t, res.DistanceCM)
	assert.Equal(t, models.PostureUnknown, res.Posture)
	assert.False(t, res.Behavior.FaceTouchKnown)
}

func TestClassify_Uncalibrated(t *testing.T) {
	c := New(DefaultThresholds(), zap.NewNop())
	res := c.Classify(uprightScene().frame(), nil)

	assert.False(t, res.Calibrated)
	assert.Nil(t, res.DistanceCM)
	assert.Equal(t, models.PostureUnknown, res.Posture)
	assert.True(t, res.Framing.FacePresent)
}

func TestClassify_NilFrame(t *testing.T) {
	c := New(DefaultThresholds(), zap.NewNop())
	res := c.Classify(nil, neutralProfile())
	assert.Equal(t, models.PostureUnknown, res.Posture)
	assert.Nil(t, res.DistanceCM)
}

func TestThresholdsFromConfig_MatchesDefaults(t *testing.T) {
	t.Setenv("SG_ENV_FILE", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultThresholds(), ThresholdsFromConfig(cfg))
}
