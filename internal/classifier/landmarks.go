package classifier

import (
	"math"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Face mesh indices.
var (
	LeftEyeIdx  = []int{33, 133, 160, 159, 158}
	RightEyeIdx = []int{362, 263, 387, 386, 385}
	MouthIdx    = []int{13, 14, 78, 308, 311, 312}
)

const NoseIdx = 1

// Pose indices.
const (
	LeftShoulderIdx  = 11
	RightShoulderIdx = 12
)

// Hand indices.
const WristIdx = 0

// FingertipIdx maps each fingertip to the joint below it, used for the curl test.
var FingertipIdx = map[int]int{
	4:  3,  // thumb tip -> IP
	8:  6,  // index tip -> PIP
	12: 10, // middle
	16: 14, // ring
	20: 18, // pinky
}

// fingertipOrder fixes iteration order over FingertipIdx.
var fingertipOrder = []int{4, 8, 12, 16, 20}

// eyeCentres returns the left and right eye centroids.
func eyeCentres(f *models.LandmarkFrame) (models.PixelPoint, models.PixelPoint, bool) {
	l, okL := f.FaceCentroid(LeftEyeIdx)
	r, okR := f.FaceCentroid(RightEyeIdx)
	return l, r, okL && okR
}

// shoulders returns both shoulders when each is visible enough.
func shoulders(f *models.LandmarkFrame, minVisibility float64) (models.PixelPoint, models.PixelPoint, bool) {
	l, okL := f.PosePixel(LeftShoulderIdx, minVisibility)
	r, okR := f.PosePixel(RightShoulderIdx, minVisibility)
	return l, r, okL && okR
}

func midpoint(a, b models.PixelPoint) models.PixelPoint {
	return models.PixelPoint{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func angleDeg(from, to models.PixelPoint) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X) * 180 / math.Pi
}
