package landmark

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrMalformedDetection is returned when a detection result cannot be mapped
// onto the fixed layout. It concerns a single frame; callers skip the frame.
var ErrMalformedDetection = errors.New("malformed detection result")

// DefaultVisibility is stored for points whose detector reports no visibility.
const DefaultVisibility = 1.0

// precision is the number of decimal places kept per coordinate.
const precision = 1e6

// Vectorize converts one detection result into a FrameRecord. Absent parts
// become zero placeholders; a present part must carry exactly its declared
// number of points.
func Vectorize(res *detector.Result) (FrameRecord, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil result", ErrMalformedDetection)
	}

	rec := make(FrameRecord, len(Parts))
	for _, part := range Parts {
		points, err := vectorizePart(part, group(res, part))
		if err != nil {
			return nil, err
		}
		rec[part] = points
	}
	return rec, nil
}

func group(res *detector.Result, part Part) []detector.Landmark {
	switch part {
	case Pose:
		return res.Pose
	case Face:
		return res.Face
	case LeftHand:
		return res.LeftHand
	case RightHand:
		return res.RightHand
	}
	return nil
}

func vectorizePart(part Part, landmarks []detector.Landmark) ([]Point, error) {
	if len(landmarks) == 0 {
		return ZeroPoints(part), nil
	}
	if len(landmarks) != part.Points() {
		return nil, fmt.Errorf("%w: %s has %d landmarks, want %d",
			ErrMalformedDetection, part, len(landmarks), part.Points())
	}

	points := make([]Point, len(landmarks))
	for i, lm := range landmarks {
		visibility := DefaultVisibility
		if part == Pose && lm.Visibility != nil {
			visibility = *lm.Visibility
		}
		pt := Point{lm.X, lm.Y, lm.Z, visibility}
		for j, v := range pt {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s landmark %d is not finite", ErrMalformedDetection, part, i)
			}
			pt[j] = round(v)
		}
		points[i] = pt
	}
	return points, nil
}

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}
