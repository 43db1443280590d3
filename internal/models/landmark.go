package models

import (
	"math"
	"time"
)

// Point is a landmark in normalised image coordinates (X, Y in [0,1]).
// Z is depth relative to the landmark set's origin; smaller is closer to the camera.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// PixelPoint is a point in image pixels.
type PixelPoint struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance between two pixel points.
func (p PixelPoint) Dist(o PixelPoint) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Box is an axis-aligned pixel rectangle.
type Box struct {
	X, Y, W, H float64
}

// Contains reports whether p lies in the box grown by margin on every side.
// A negative margin shrinks the box.
func (b Box) Contains(p PixelPoint, margin float64) bool {
	return p.X >= b.X-margin && p.X <= b.X+b.W+margin &&
		p.Y >= b.Y-margin && p.Y <= b.Y+b.H+margin
}

// Center returns the box centre.
func (b Box) Center() PixelPoint {
	return PixelPoint{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// LandmarkFrame is one detector output. A nil landmark group means the detector found
// nothing for it in this frame.
type LandmarkFrame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Face      []Point   `json:"face,omitempty"`  // face mesh
	Pose      []Point   `json:"pose,omitempty"`  // body pose
	Hands     [][]Point `json:"hands,omitempty"` // one slice per detected hand
}

// HasFace reports whether face mesh landmarks are present.
func (f *LandmarkFrame) HasFace() bool {
	return f != nil && len(f.Face) > 0
}

// HasPose reports whether pose landmarks are present.
func (f *LandmarkFrame) HasPose() bool {
	return f != nil && len(f.Pose) > 0
}

// HasHands reports whether at least one hand is present.
func (f *LandmarkFrame) HasHands() bool {
	return f != nil && len(f.Hands) > 0
}

// Empty reports whether the detector returned nothing at all.
func (f *LandmarkFrame) Empty() bool {
	return !f.HasFace() && !f.HasPose() && !f.HasHands()
}

// FacePixel returns face mesh landmark idx in pixels.
func (f *LandmarkFrame) FacePixel(idx int) (PixelPoint, bool) {
	if f == nil || idx < 0 || idx >= len(f.Face) {
		return PixelPoint{}, false
	}
	return f.toPixel(f.Face[idx]), true
}

// PosePixel returns pose landmark idx in pixels when its visibility exceeds minVisibility.
func (f *LandmarkFrame) PosePixel(idx int, minVisibility float64) (PixelPoint, bool) {
	if f == nil || idx < 0 || idx >= len(f.Pose) {
		return PixelPoint{}, false
	}
	p := f.Pose[idx]
	if p.Visibility <= minVisibility {
		return PixelPoint{}, false
	}
	return f.toPixel(p), true
}

// FaceCentroid averages the given face mesh landmarks. All indices must be present.
func (f *LandmarkFrame) FaceCentroid(idxs []int) (PixelPoint, bool) {
	if len(idxs) == 0 {
		return PixelPoint{}, false
	}
	var sx, sy float64
	for _, idx := range idxs {
		p, ok := f.FacePixel(idx)
		if !ok {
			return PixelPoint{}, false
		}
		sx += p.X
		sy += p.Y
	}
	n := float64(len(idxs))
	return PixelPoint{X: sx / n, Y: sy / n}, true
}

// FaceBounds returns the pixel bounding box of the whole face mesh.
func (f *LandmarkFrame) FaceBounds() (Box, bool) {
	if !f.HasFace() {
		return Box{}, false
	}
	return f.bounds(f.Face), true
}

// FaceSubsetBounds returns the pixel bounding box of the given face landmarks.
func (f *LandmarkFrame) FaceSubsetBounds(idxs []int) (Box, bool) {
	pts := make([]Point, 0, len(idxs))
	for _, idx := range idxs {
		if idx < 0 || idx >= len(f.Face) {
			return Box{}, false
		}
		pts = append(pts, f.Face[idx])
	}
	if len(pts) == 0 {
		return Box{}, false
	}
	return f.bounds(pts), true
}

// HandPixel returns landmark idx of hand h in pixels along with its depth.
func (f *LandmarkFrame) HandPixel(h, idx int) (PixelPoint, float64, bool) {
	if f == nil || h < 0 || h >= len(f.Hands) {
		return PixelPoint{}, 0, false
	}
	hand := f.Hands[h]
	if idx < 0 || idx >= len(hand) {
		return PixelPoint{}, 0, false
	}
	return f.toPixel(hand[idx]), hand[idx].Z, true
}

func (f *LandmarkFrame) toPixel(p Point) PixelPoint {
	return PixelPoint{X: p.X * float64(f.Width), Y: p.Y * float64(f.Height)}
}

func (f *LandmarkFrame) bounds(pts []Point) Box {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		px := f.toPixel(p)
		minX = math.Min(minX, px.X)
		minY = math.Min(minY, px.Y)
		maxX = math.Max(maxX, px.X)
		maxY = math.Max(maxY, px.Y)
	}
	return Box{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
