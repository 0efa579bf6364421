package detector

import "gocv.io/x/gocv"

// Detector defines the interface for body landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the landmark groups found on
	// the most prominent person. Groups that were not detected are nil.
	Detect(frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the detector. Detect may be
	// called again afterwards.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// MinDetectionConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConfidence float64

	// MinTrackingConfidence is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}
