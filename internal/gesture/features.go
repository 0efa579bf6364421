package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/sequence"
)

// Upper body pose landmarks: shoulders, elbows, wrists.
var posePoints = [armPoints]int{11, 12, 13, 14, 15, 16}

const (
	armPoints     = 6
	leftShoulder  = 11
	rightShoulder = 12

	poseOffset      = 0
	leftHandOffset  = (landmark.PosePoints + landmark.FacePoints) * landmark.Dims
	rightHandOffset = leftHandOffset + landmark.HandPoints*landmark.Dims
)

// FeatureDim is the length of one feature vector: x and y of the upper body
// pose points and of both hands.
const FeatureDim = (armPoints + 2*landmark.HandPoints) * 2

// Features reduces a flattened frame to the points that carry a sign: arms
// and hands, as x and y relative to the shoulder midpoint and scaled by the
// shoulder width. Undetected hands stay at zero. The face is ignored.
func Features(frame []float32) []float32 {
	cx, cy, scale := float32(0), float32(0), float32(1)
	lx, ly := point(frame, poseOffset, leftShoulder)
	rx, ry := point(frame, poseOffset, rightShoulder)
	if w := float32(math.Hypot(float64(lx-rx), float64(ly-ry))); w > 1e-6 {
		cx, cy, scale = (lx+rx)/2, (ly+ry)/2, w
	}

	out := make([]float32, 0, FeatureDim)
	add := func(offset, i int) {
		x, y := point(frame, offset, i)
		if x == 0 && y == 0 {
			out = append(out, 0, 0)
			return
		}
		out = append(out, (x-cx)/scale, (y-cy)/scale)
	}

	for _, i := range posePoints {
		add(poseOffset, i)
	}
	for i := 0; i < landmark.HandPoints; i++ {
		add(leftHandOffset, i)
	}
	for i := 0; i < landmark.HandPoints; i++ {
		add(rightHandOffset, i)
	}
	return out
}

// Path converts a flattened sequence to feature vectors, stopping at the
// first padding row.
func Path(t sequence.Tensor, sentinel float32) [][]float32 {
	path := make([][]float32, 0, len(t))
	for _, row := range t {
		if sequence.IsPadding(row, sentinel) {
			break
		}
		path = append(path, Features(row))
	}
	return path
}

func point(frame []float32, offset, i int) (x, y float32) {
	base := offset + i*landmark.Dims
	return frame[base], frame[base+1]
}
