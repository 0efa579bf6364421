package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"gocv.io/x/gocv"
)

// maxReadFailures is how many consecutive camera read errors are tolerated
// before Next gives up.
const maxReadFailures = 30

// SourceConfig configures a CameraSource.
type SourceConfig struct {
	Camera   capture.Camera
	Detector detector.Detector
	// MotionThreshold enables motion gating when positive: the camera runs
	// at idle FPS and frames skip detection until something moves.
	MotionThreshold float64
	HoldFrames      int
	// Preview, when set, receives every frame read.
	Preview *capture.Preview
	Logger  *slog.Logger
}

// CameraSource reads camera frames, runs the landmark detector on them and
// vectorizes the result. It implements recognizer.FrameSource and is the
// single detector capability shared by capture sessions and live
// translation; only one of them reads from it at a time.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	gate     *capture.MotionGate
	preview  *capture.Preview
	logger   *slog.Logger

	mu       sync.Mutex
	active   bool
	detected int
	idle     int
}

// NewCameraSource creates a source. The camera is opened by Open.
func NewCameraSource(cfg SourceConfig) (*CameraSource, error) {
	if cfg.Camera == nil {
		return nil, errors.New("camera source: nil camera")
	}
	if cfg.Detector == nil {
		return nil, errors.New("camera source: nil detector")
	}

	s := &CameraSource{
		camera:   cfg.Camera,
		detector: cfg.Detector,
		preview:  cfg.Preview,
		logger:   logging.WithComponent(cfg.Logger, "camera-source"),
	}
	if cfg.MotionThreshold > 0 {
		s.gate = capture.NewMotionGate(capture.NewMotionDetector(cfg.MotionThreshold), cfg.HoldFrames)
	}
	return s, nil
}

// Open opens the camera. With motion gating it starts at idle FPS.
func (s *CameraSource) Open() error {
	if err := s.camera.Open(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		s.gate.Reset()
		s.active = false
		s.camera.SetFPS(capture.IdleFPS)
	} else {
		s.active = true
		s.camera.SetFPS(capture.DefaultFPS)
	}
	return nil
}

// Close closes the camera and stops the detector. The source can be opened
// again; the detector restarts on the next frame.
func (s *CameraSource) Close() error {
	err := s.camera.Close()
	if derr := s.detector.Close(); derr != nil && err == nil {
		err = derr
	}
	return err
}

// Release closes the source for good, including the motion gate.
func (s *CameraSource) Release() error {
	err := s.Close()
	if s.gate != nil {
		s.gate.Close()
	}
	return err
}

// Camera returns the underlying camera.
func (s *CameraSource) Camera() capture.Camera {
	return s.camera
}

// Stats returns how many frames went through detection and how many were
// skipped by the motion gate.
func (s *CameraSource) Stats() (detected, idle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detected, s.idle
}

// Next returns the next frame record. Camera end of stream is returned as
// io.EOF; detector failures are logged and the frame is dropped.
func (s *CameraSource) Next(ctx context.Context) (landmark.FrameRecord, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := s.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, capture.ErrCameraNotOpen) {
				return nil, err
			}
			failures++
			if failures >= maxReadFailures {
				return nil, fmt.Errorf("read frame: %w", err)
			}
			continue
		}
		failures = 0

		s.preview.Publish(frame)

		if !s.gateOpen(frame) {
			frame.Close()
			continue
		}

		res, err := s.detector.Detect(frame)
		frame.Close()
		if err != nil {
			s.logger.Warn("landmark detection failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.detected++
		s.mu.Unlock()
		return landmark.Vectorize(res)
	}
}

// gateOpen feeds the motion gate and switches the camera between idle and
// full frame rate on transitions.
func (s *CameraSource) gateOpen(frame *gocv.Mat) bool {
	if s.gate == nil {
		return true
	}
	open := s.gate.Update(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case open && !s.active:
		s.active = true
		s.camera.SetFPS(capture.DefaultFPS)
		s.logger.Debug("motion detected, switching to active mode")
	case !open && s.active:
		s.active = false
		s.camera.SetFPS(capture.IdleFPS)
		s.logger.Debug("no motion, switching to idle mode")
	}
	if !open {
		s.idle++
	}
	return open
}
