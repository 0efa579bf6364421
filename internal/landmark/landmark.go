// Package landmark defines the fixed per-frame landmark layout shared by the
// corpus, the sequence encoder and the live recognizer.
//
// A frame is encoded as four body parts, each a fixed number of points with
// four values (x, y, z, visibility). The layout is versioned: a corpus holds
// records of exactly one SchemaVersion.
package landmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the point budget below. Bump it whenever a point
// count or Dims changes.
const SchemaVersion = 1

// Dims is the number of values stored per point: x, y, z, visibility.
const Dims = 4

// Point counts per body part, following the MediaPipe Holistic topology.
const (
	PosePoints = 33
	FacePoints = 468
	HandPoints = 21
)

// FrameDim is the length of one flattened frame.
const FrameDim = (PosePoints + FacePoints + 2*HandPoints) * Dims

// Part names a tracked body part.
type Part string

const (
	Pose      Part = "POSE"
	Face      Part = "FACE"
	LeftHand  Part = "LEFT_HAND"
	RightHand Part = "RIGHT_HAND"
)

// Parts lists the body parts in flattening order.
var Parts = [...]Part{Pose, Face, LeftHand, RightHand}

// Points returns the declared point count of the part, or 0 for an unknown part.
func (p Part) Points() int {
	switch p {
	case Pose:
		return PosePoints
	case Face:
		return FacePoints
	case LeftHand, RightHand:
		return HandPoints
	default:
		return 0
	}
}

// Len returns the flattened vector length of the part.
func (p Part) Len() int {
	return p.Points() * Dims
}

// Valid reports whether p is one of Parts.
func (p Part) Valid() bool {
	return p.Points() > 0
}

// Point is a single landmark: x, y, z and visibility.
type Point [Dims]float64

// UnmarshalJSON decodes an array of exactly Dims values. encoding/json would
// otherwise zero-fill a short array and drop the tail of a long one.
func (p *Point) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) != Dims {
		return &ShapeError{Frame: -1, Reason: fmt.Sprintf("point has %d values, want %d", len(values), Dims)}
	}
	copy(p[:], values)
	return nil
}

// FrameRecord maps every body part to its fixed-length point list.
// Undetected parts hold zero points, never a shorter list.
type FrameRecord map[Part][]Point

// UnmarshalJSON decodes a record and names the part and point of a
// misshapen point.
func (r *FrameRecord) UnmarshalJSON(data []byte) error {
	var raw map[Part][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}

	rec := make(FrameRecord, len(raw))
	for part, points := range raw {
		pts := make([]Point, len(points))
		for i, pt := range points {
			if err := json.Unmarshal(pt, &pts[i]); err != nil {
				var se *ShapeError
				if errors.As(err, &se) {
					se.Part = part
					se.Reason = fmt.Sprintf("point %d: %s", i, se.Reason)
				}
				return err
			}
		}
		rec[part] = pts
	}
	*r = rec
	return nil
}

// DecodeFrames decodes a JSON array of records. A misshapen point fails with
// a *ShapeError naming its frame.
func DecodeFrames(data []byte) ([]FrameRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	frames := make([]FrameRecord, len(raw))
	for i, f := range raw {
		if err := json.Unmarshal(f, &frames[i]); err != nil {
			var se *ShapeError
			if errors.As(err, &se) {
				se.Frame = i
			}
			return nil, err
		}
	}
	return frames, nil
}

// ZeroPoints returns the placeholder used for an undetected part.
func ZeroPoints(p Part) []Point {
	return make([]Point, p.Points())
}

// NewFrameRecord returns a record with every part undetected.
func NewFrameRecord() FrameRecord {
	rec := make(FrameRecord, len(Parts))
	for _, part := range Parts {
		rec[part] = ZeroPoints(part)
	}
	return rec
}

// Validate checks that the record has exactly the four parts, each with its
// declared point count and finite values.
func (r FrameRecord) Validate() error {
	if r == nil {
		return &ShapeError{Frame: -1, Reason: "nil frame record"}
	}
	for _, part := range Parts {
		points, ok := r[part]
		if !ok {
			return &ShapeError{Frame: -1, Part: part, Reason: "missing part"}
		}
		if len(points) != part.Points() {
			return &ShapeError{
				Frame:  -1,
				Part:   part,
				Reason: fmt.Sprintf("has %d points, want %d", len(points), part.Points()),
			}
		}
		for i, pt := range points {
			for _, v := range pt {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return &ShapeError{Frame: -1, Part: part, Reason: fmt.Sprintf("point %d is not finite", i)}
				}
			}
		}
	}
	if len(r) != len(Parts) {
		for part := range r {
			if !part.Valid() {
				return &ShapeError{Frame: -1, Part: part, Reason: "unknown part"}
			}
		}
	}
	return nil
}

// Equal reports whether two records hold the same parts and values.
func (r FrameRecord) Equal(other FrameRecord) bool {
	if len(r) != len(other) {
		return false
	}
	for part, points := range r {
		otherPoints, ok := other[part]
		if !ok || len(points) != len(otherPoints) {
			return false
		}
		for i := range points {
			if points[i] != otherPoints[i] {
				return false
			}
		}
	}
	return true
}

// Detected reports whether the part holds anything other than the zero placeholder.
func (r FrameRecord) Detected(p Part) bool {
	for _, pt := range r[p] {
		if pt != (Point{}) {
			return true
		}
	}
	return false
}

// ValidateFrames validates every record of a sequence and reports the index
// of the first invalid frame.
func ValidateFrames(frames []FrameRecord) error {
	for i, rec := range frames {
		if err := rec.Validate(); err != nil {
			if se, ok := err.(*ShapeError); ok {
				se.Frame = i
			}
			return err
		}
	}
	return nil
}

// ShapeError reports a frame or sequence whose layout does not match the schema.
type ShapeError struct {
	Frame  int // -1 when not known
	Part   Part
	Reason string
}

func (e *ShapeError) Error() string {
	msg := "shape error"
	if e.Frame >= 0 {
		msg += fmt.Sprintf(": frame %d", e.Frame)
	}
	if e.Part != "" {
		msg += fmt.Sprintf(": part %s", e.Part)
	}
	return msg + ": " + e.Reason
}
