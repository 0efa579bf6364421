// Package detector provides body landmark detection interfaces and types.
package detector

// Landmark is a single detected point in normalized image coordinates.
// Visibility is only reported for pose landmarks.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// Result is the raw output of one detection call. Each group is an ordered
// landmark list, or nil when the part was not found in the frame.
type Result struct {
	Pose      []Landmark `json:"pose"`
	Face      []Landmark `json:"face"`
	LeftHand  []Landmark `json:"left_hand"`
	RightHand []Landmark `json:"right_hand"`
}

// Empty reports whether nothing was detected.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Pose) == 0 && len(r.Face) == 0 && len(r.LeftHand) == 0 && len(r.RightHand) == 0)
}

// Vis returns a pointer to v, for building pose landmarks.
func Vis(v float64) *float64 {
	return &v
}
