package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/google/uuid"
)

// DefaultSessionFrames is the number of frames captured per repeat.
const DefaultSessionFrames = 50

// Collector records repeats of an action into a corpus.
type Collector struct {
	repo   corpus.Repository
	source recognizer.FrameSource
	logger *slog.Logger
	after  func(time.Duration) <-chan time.Time
}

// Session describes one capture.
type Session struct {
	Action string
	// Frames is the number of frames to capture; 0 uses DefaultSessionFrames.
	Frames int
	// Countdown is waited before capturing starts.
	Countdown time.Duration
	// OnFrame, when set, is called after every captured frame.
	OnFrame func(captured int)
}

// NewCollector creates a collector reading from source.
func NewCollector(repo corpus.Repository, source recognizer.FrameSource, logger *slog.Logger) *Collector {
	return &Collector{
		repo:   repo,
		source: source,
		logger: logging.WithComponent(logger, "collector"),
		after:  time.After,
	}
}

// Record waits for the countdown, captures up to s.Frames frames (fewer if
// ctx is cancelled or the source ends) and saves them as the next repeat of
// s.Action. Malformed detections are skipped. Nothing is written when no
// frame was captured.
func (c *Collector) Record(ctx context.Context, s Session) (corpus.Key, error) {
	if err := corpus.ValidateName(s.Action); err != nil {
		return corpus.Key{}, err
	}
	want := s.Frames
	if want <= 0 {
		want = DefaultSessionFrames
	}

	logger := logging.WithSession(c.logger, uuid.NewString()).With("action", s.Action)

	if s.Countdown > 0 {
		logger.Info("capture starting", "countdown", s.Countdown)
		select {
		case <-ctx.Done():
			return corpus.Key{}, ctx.Err()
		case <-c.after(s.Countdown):
		}
	}

	frames, err := c.capture(ctx, want, s.OnFrame, logger)
	if err != nil {
		return corpus.Key{}, err
	}

	// A cancelled capture still saves what it has.
	key, err := c.repo.Save(context.WithoutCancel(ctx), s.Action, frames)
	if err != nil {
		if errors.Is(err, corpus.ErrEmptySequence) {
			logger.Warn("no frames captured, nothing saved")
		}
		return corpus.Key{}, err
	}
	logger.Info("repeat saved", "repeat", key.Repeat, "frames", len(frames), "location", key.Location)
	return key, nil
}

func (c *Collector) capture(ctx context.Context, want int, onFrame func(int), logger *slog.Logger) ([]landmark.FrameRecord, error) {
	frames := make([]landmark.FrameRecord, 0, want)
	for len(frames) < want {
		rec, err := c.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				logger.Info("capture ended early", "captured", len(frames), "wanted", want)
				return frames, nil
			case errors.Is(err, landmark.ErrMalformedDetection):
				logger.Warn("skipping malformed frame", "error", err)
				continue
			default:
				return nil, fmt.Errorf("capture frame %d: %w", len(frames), err)
			}
		}
		frames = append(frames, rec)
		if onFrame != nil {
			onFrame(len(frames))
		}
	}
	return frames, nil
}
