package classifier

import "github.com/EricW9888/ScreenGuardian/internal/models"

// The hand heuristics below are approximate. They key off fingertip positions against
// face and mouth boxes and will report false positives, e.g. when a hand passes in
// front of the face without touching it.

// DetectFaceTouch reports whether any fingertip lies inside the face box shrunk by the
// touch margin and in front of the depth threshold. known is false without a face or hands.
func DetectFaceTouch(f *models.LandmarkFrame, th Thresholds) (touch bool, known bool) {
	face, ok := f.FaceBounds()
	if !ok || !f.HasHands() {
		return false, false
	}
	for h := range f.Hands {
		for _, tip := range fingertipOrder {
			p, z, ok := f.HandPixel(h, tip)
			if !ok {
				continue
			}
			if face.Contains(p, -th.FaceTouchMarginPx) && z < th.NailDepthThreshold {
				return true, true
			}
		}
	}
	return false, true
}

// DetectNailBiting reports whether a curled finger's tip is at the mouth.
// known is false without mouth landmarks or hands.
func DetectNailBiting(f *models.LandmarkFrame, th Thresholds) (biting bool, known bool) {
	mouth, ok := MouthBox(f, th)
	if !ok || !f.HasHands() {
		return false, false
	}
	for h := range f.Hands {
		wrist, _, ok := f.HandPixel(h, WristIdx)
		if !ok {
			continue
		}
		for _, tip := range fingertipOrder {
			p, z, ok := f.HandPixel(h, tip)
			if !ok {
				continue
			}
			if !mouth.Contains(p, th.NailContactMarginPx) || z >= th.NailDepthThreshold {
				continue
			}
			joint, _, ok := f.HandPixel(h, FingertipIdx[tip])
			if !ok {
				continue
			}
			if fingerCurled(wrist, joint, p, th.NailCurlRatio) {
				return true, true
			}
		}
	}
	return false, true
}

// MouthBox is the padded bounding box of the lip landmarks.
func MouthBox(f *models.LandmarkFrame, th Thresholds) (models.Box, bool) {
	box, ok := f.FaceSubsetBounds(MouthIdx)
	if !ok {
		return models.Box{}, false
	}
	pad := th.MouthBoxPaddingPx
	return models.Box{X: box.X - pad, Y: box.Y - pad, W: box.W + 2*pad, H: box.H + 2*pad}, true
}

// fingerCurled compares the tip's reach from the wrist with the joint's reach. A
// straight finger reaches well past its joint.
func fingerCurled(wrist, joint, tip models.PixelPoint, ratio float64) bool {
	jointReach := wrist.Dist(joint)
	if jointReach <= eps {
		return false
	}
	return wrist.Dist(tip) < jointReach*ratio
}
