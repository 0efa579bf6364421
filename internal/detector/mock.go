package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	results []*Result
	next    int
	err     error
	calls   int
	closes  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the result returned by every Detect call.
func (m *MockDetector) SetResult(r *Result) {
	m.SetResults([]*Result{r})
}

// SetResults sets a sequence of results returned by Detect in order.
// The sequence wraps around once exhausted.
func (m *MockDetector) SetResults(rs []*Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = rs
	m.next = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) == 0 {
		return &Result{}, nil
	}
	r := m.results[m.next%len(m.results)]
	m.next++
	return r, nil
}

// Closes returns how many times Close was called.
func (m *MockDetector) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Close counts the call. The mock keeps detecting afterwards.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// SyntheticPose returns 33 pose landmarks laid out on a vertical line and
// shifted horizontally by offset.
func SyntheticPose(offset float64) []Landmark {
	points := make([]Landmark, 33)
	for i := range points {
		points[i] = Landmark{
			X:          0.4 + offset,
			Y:          0.1 + float64(i)*0.025,
			Z:          -0.1,
			Visibility: Vis(0.9),
		}
	}
	return points
}

// SyntheticFace returns 468 face landmarks on a circle centred at (0.5, 0.3).
func SyntheticFace(offset float64) []Landmark {
	points := make([]Landmark, 468)
	for i := range points {
		angle := 2 * math.Pi * float64(i) / float64(len(points))
		points[i] = Landmark{
			X: 0.5 + offset + 0.1*math.Cos(angle),
			Y: 0.3 + 0.12*math.Sin(angle),
			Z: 0.01,
		}
	}
	return points
}

// FullResult returns a result with all four parts detected.
func FullResult(offset float64) *Result {
	return &Result{
		Pose:      SyntheticPose(offset),
		Face:      SyntheticFace(offset),
		LeftHand:  OpenPalmHand(),
		RightHand: ThumbsUpHand(),
	}
}

// ThumbsUpHand returns 21 hand landmarks for a thumbs up pose.
// The thumb is extended upward while other fingers are curled.
func ThumbsUpHand() []Landmark {
	return []Landmark{
		{X: 0.5, Y: 0.8, Z: 0.0},
		// Thumb extended upward
		{X: 0.55, Y: 0.75, Z: 0.0},
		{X: 0.58, Y: 0.65, Z: 0.0},
		{X: 0.58, Y: 0.50, Z: 0.0},
		{X: 0.58, Y: 0.35, Z: 0.0},
		// Index curled
		{X: 0.55, Y: 0.70, Z: -0.02},
		{X: 0.55, Y: 0.68, Z: -0.05},
		{X: 0.52, Y: 0.70, Z: -0.04},
		{X: 0.50, Y: 0.72, Z: -0.02},
		// Middle curled
		{X: 0.50, Y: 0.68, Z: -0.02},
		{X: 0.50, Y: 0.66, Z: -0.05},
		{X: 0.47, Y: 0.68, Z: -0.04},
		{X: 0.45, Y: 0.70, Z: -0.02},
		// Ring curled
		{X: 0.45, Y: 0.70, Z: -0.02},
		{X: 0.45, Y: 0.68, Z: -0.05},
		{X: 0.42, Y: 0.70, Z: -0.04},
		{X: 0.40, Y: 0.72, Z: -0.02},
		// Pinky curled
		{X: 0.40, Y: 0.72, Z: -0.02},
		{X: 0.40, Y: 0.70, Z: -0.05},
		{X: 0.37, Y: 0.72, Z: -0.04},
		{X: 0.35, Y: 0.74, Z: -0.02},
	}
}

// OpenPalmHand returns 21 hand landmarks with all fingers extended.
func OpenPalmHand() []Landmark {
	return []Landmark{
		{X: 0.5, Y: 0.8, Z: 0.0},
		// Thumb extended to the side
		{X: 0.55, Y: 0.75, Z: 0.02},
		{X: 0.62, Y: 0.70, Z: 0.03},
		{X: 0.68, Y: 0.65, Z: 0.03},
		{X: 0.73, Y: 0.60, Z: 0.03},
		// Index
		{X: 0.55, Y: 0.68, Z: 0.0},
		{X: 0.57, Y: 0.55, Z: 0.0},
		{X: 0.58, Y: 0.45, Z: 0.0},
		{X: 0.58, Y: 0.35, Z: 0.0},
		// Middle
		{X: 0.50, Y: 0.66, Z: 0.0},
		{X: 0.50, Y: 0.52, Z: 0.0},
		{X: 0.50, Y: 0.40, Z: 0.0},
		{X: 0.50, Y: 0.28, Z: 0.0},
		// Ring
		{X: 0.45, Y: 0.68, Z: 0.0},
		{X: 0.43, Y: 0.55, Z: 0.0},
		{X: 0.42, Y: 0.45, Z: 0.0},
		{X: 0.42, Y: 0.35, Z: 0.0},
		// Pinky
		{X: 0.40, Y: 0.70, Z: 0.0},
		{X: 0.37, Y: 0.60, Z: 0.0},
		{X: 0.35, Y: 0.50, Z: 0.0},
		{X: 0.34, Y: 0.42, Z: 0.0},
	}
}
