package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// Preview fans the latest camera frame out to MJPEG viewers. Frames are
// JPEG-encoded only while someone is watching, and a slow viewer only ever
// misses frames; it never blocks the capture loop.
type Preview struct {
	mu      sync.Mutex
	viewers map[chan []byte]struct{}
	quality int
}

// NewPreview creates a preview encoding at the given JPEG quality (1-100).
// Other values use 80.
func NewPreview(quality int) *Preview {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Preview{
		viewers: make(map[chan []byte]struct{}),
		quality: quality,
	}
}

// Watch registers a viewer. The returned channel receives JPEG frames until
// stop is called.
func (p *Preview) Watch() (frames <-chan []byte, stop func()) {
	ch := make(chan []byte, 1)
	p.mu.Lock()
	p.viewers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.viewers, ch)
			p.mu.Unlock()
		})
	}
}

// Viewers returns the number of registered viewers.
func (p *Preview) Viewers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.viewers)
}

// Publish encodes frame and offers it to every viewer. A nil Preview
// ignores the call. The frame is not retained.
func (p *Preview) Publish(frame *gocv.Mat) {
	if p == nil || frame == nil || frame.Empty() || p.Viewers() == 0 {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, p.quality})
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.viewers {
		select {
		case ch <- data:
		default:
			// drop the stale frame and offer the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}
