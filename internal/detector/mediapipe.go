package detector

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

const holisticScript = "scripts/holistic_service.py"

// MediaPipeDetector runs MediaPipe Holistic in a Python helper process.
//
// The helper starts on the first Detect and stops on Close; a later Detect
// starts it again, so a detector can outlive several camera sessions. A
// failed exchange also stops the helper since the pipe position is unknown.
type MediaPipeDetector struct {
	config Config
	python string
	script string

	mu  sync.Mutex
	svc *holisticService
}

// NewMediaPipeDetector locates the helper script and interpreter. Nothing is
// started yet.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	roots := searchRoots()
	script := locate(roots, holisticScript)
	if script == "" {
		return nil, fmt.Errorf("%s not found", filepath.Base(holisticScript))
	}
	python := locate(roots, "venv/bin/python")
	if python == "" {
		python = "python3"
	}
	return &MediaPipeDetector{config: config, python: python, script: script}, nil
}

// Detect sends frame to the helper and returns its landmark groups.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*Result, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	jpeg, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer jpeg.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		svc, err := startHolistic(d.python, d.script, d.config)
		if err != nil {
			return nil, err
		}
		d.svc = svc
	}

	result, err := d.svc.exchange(jpeg.GetBytes())
	if err != nil {
		d.svc.stop()
		d.svc = nil
		return nil, err
	}
	return result, nil
}

// Close stops the helper process if it is running.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.svc == nil {
		return nil
	}
	err := d.svc.stop()
	d.svc = nil
	return err
}

// searchRoots lists the directories the helper files are looked up in.
func searchRoots() []string {
	roots := []string{".", ".."}
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".mudra"))
	}
	return roots
}

// locate returns the absolute path of rel under the first root holding it.
func locate(roots []string, rel string) string {
	for _, root := range roots {
		path := filepath.Join(root, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}
