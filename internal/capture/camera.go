// Package capture reads video frames from a webcam or a recorded video file
// through GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings. Signing needs the full frame rate; IdleFPS is
// used by motion gating while nobody is in front of the camera.
const (
	DefaultFPS    = 30
	IdleFPS       = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera is a source of BGR frames. ReadFrame returns io.EOF when a finite
// source (a video file) is exhausted. The caller closes returned Mats.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config configures a device or file camera.
type Config struct {
	DeviceID int
	// File, when set, plays a video file instead of opening a device.
	File   string
	Width  int
	Height int
	FPS    int
	// Mirror flips frames horizontally so the signer sees a mirror image and
	// left/right hands match the signer's own.
	Mirror bool
}

// DefaultConfig returns the settings for webcam 0.
func DefaultConfig() Config {
	return Config{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
		Mirror: true,
	}
}

// cameraImpl manages video capture using GoCV.
type cameraImpl struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a camera for the given webcam device with default settings.
func NewCamera(deviceID int) Camera {
	cfg := DefaultConfig()
	cfg.DeviceID = deviceID
	return NewCameraWithConfig(cfg)
}

// NewVideoFile creates a camera that plays a recorded video once.
func NewVideoFile(path string) Camera {
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Mirror = false
	return NewCameraWithConfig(cfg)
}

// NewCameraWithConfig creates a camera from cfg. Zero sizes and rates take
// the defaults.
func NewCameraWithConfig(cfg Config) Camera {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	return &cameraImpl{cfg: cfg}
}

// Open opens the device or file.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if c.cfg.File != "" {
		capture, err = gocv.VideoCaptureFile(c.cfg.File)
	} else {
		capture, err = gocv.OpenVideoCapture(c.cfg.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("open video source: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("video source %s could not be opened", c.source())
	}

	if c.cfg.File == "" {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
		capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}

	c.capture = capture
	c.running = true
	return nil
}

func (c *cameraImpl) source() string {
	if c.cfg.File != "" {
		return c.cfg.File
	}
	return fmt.Sprintf("device %d", c.cfg.DeviceID)
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	return err
}

// ReadFrame reads a single frame, mirrored if configured.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if c.cfg.File != "" {
			return nil, io.EOF
		}
		return nil, errors.New("failed to read frame from camera")
	}

	if c.cfg.Mirror {
		gocv.Flip(mat, &mat, 1)
	}
	return &mat, nil
}

// SetFPS sets the capture rate. Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.FPS = fps
	if c.capture != nil && c.cfg.File == "" {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current capture rate.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.FPS
}

// IsOpen reports whether the camera is open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
