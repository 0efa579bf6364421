package recognizer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ayusman/mudra/internal/landmark"
)

// FrameSource produces frames in arrival order. Next blocks until a frame is
// available and returns io.EOF at the end of a finite stream. An error
// wrapping landmark.ErrMalformedDetection affects that frame only.
type FrameSource interface {
	Next(ctx context.Context) (landmark.FrameRecord, error)
}

// Run feeds frames from src through the recognizer until the context is
// cancelled or the source ends, calling emit for every decision. Both stop
// conditions make a final Cancel attempt, also when the stop interrupts the
// classification of a frame. Cancellation is checked once per frame.
//
// Malformed detections and frames that fail schema validation are logged and
// skipped. A classifier failure stops the loop and is returned; the buffer
// is preserved.
func (r *Recognizer) Run(ctx context.Context, src FrameSource, emit func(Decision)) error {
	for {
		if ctx.Err() != nil {
			return r.finish(ctx, emit)
		}

		rec, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return r.finish(ctx, emit)
			case ctx.Err() != nil:
				return r.finish(ctx, emit)
			case errors.Is(err, landmark.ErrMalformedDetection):
				r.logger.Warn("skipping malformed frame", "error", err)
				continue
			default:
				return err
			}
		}

		d, err := r.Push(ctx, rec)
		if err != nil {
			// A stop that lands while the frame is classified still gets
			// the final attempt on the buffer, which kept the frame.
			if ctx.Err() != nil {
				return r.finish(ctx, emit)
			}
			var se *landmark.ShapeError
			if errors.As(err, &se) {
				r.logger.Warn("skipping invalid frame", "error", err)
				continue
			}
			return err
		}
		if d != nil {
			emit(*d)
		}
	}
}

// finish runs the final attempt on a context that is no longer cancelled.
func (r *Recognizer) finish(ctx context.Context, emit func(Decision)) error {
	d, err := r.Cancel(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if d != nil {
		emit(*d)
	}
	return nil
}

// SliceSource replays recorded frames and then reports io.EOF.
type SliceSource struct {
	mu     sync.Mutex
	frames []landmark.FrameRecord
	next   int
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames []landmark.FrameRecord) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next returns the next recorded frame.
func (s *SliceSource) Next(ctx context.Context) (landmark.FrameRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	rec := s.frames[s.next]
	s.next++
	return rec, nil
}
