package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	// GaussianBlurSize is the blur kernel applied before differencing.
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change counted as motion.
	DiffThreshold = 25
	// DefaultMotionThreshold is the percentage of changed pixels that counts
	// as motion.
	DefaultMotionThreshold = 1.0
	// DefaultHoldFrames keeps the gate open this many frames after the last
	// motion, so a sign that pauses mid-way is not cut.
	DefaultHoldFrames = 45
)

// MotionDetector compares consecutive frames. The threshold is the
// percentage of pixels that must change.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a detector with the given threshold in percent.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect returns whether frame differs from the previous one and the
// percentage of changed pixels. The first frame only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)
	return changed > m.threshold, changed
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold changes the threshold. Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// MotionGate decides whether frames are worth sending to the landmark
// detector. It opens on motion and stays open for a number of frames after
// the last motion.
type MotionGate struct {
	detector *MotionDetector
	hold     int
	left     int
}

// NewMotionGate wraps a detector. hold <= 0 uses DefaultHoldFrames.
func NewMotionGate(detector *MotionDetector, hold int) *MotionGate {
	if hold <= 0 {
		hold = DefaultHoldFrames
	}
	return &MotionGate{detector: detector, hold: hold}
}

// Update feeds one frame and reports whether the gate is open.
func (g *MotionGate) Update(frame *gocv.Mat) bool {
	if moved, _ := g.detector.Detect(frame); moved {
		g.left = g.hold
		return true
	}
	if g.left > 0 {
		g.left--
		return true
	}
	return false
}

// Open reports whether the gate is currently open.
func (g *MotionGate) Open() bool {
	return g.left > 0
}

// Reset closes the gate and drops the detector's baseline.
func (g *MotionGate) Reset() {
	g.detector.Reset()
	g.left = 0
}

// Close releases the underlying detector.
func (g *MotionGate) Close() {
	g.detector.Close()
}
