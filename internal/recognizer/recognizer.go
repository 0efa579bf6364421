// Package recognizer turns a stream of landmark frames into recognized signs.
//
// Frames are buffered until the buffer reaches the minimum sequence length.
// From then on every frame triggers a classification of the end-padded
// buffer; a prediction at or above the threshold is emitted and the buffer
// is cleared. When the buffer reaches the maximum length the classification
// is forced: the buffer is cleared whether or not anything was emitted.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
)

// ErrCancelled is returned by Push after Cancel.
var ErrCancelled = errors.New("recognizer cancelled")

// State is the buffer state of a Recognizer.
type State int

const (
	Accumulating State = iota
	Evaluating
	Forced
	Cancelled
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "ACCUMULATING"
	case Evaluating:
		return "EVALUATING"
	case Forced:
		return "FORCED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Accumulating, Evaluating, Forced, Cancelled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown recognizer state %q", text)
}

// Classifier evaluates one (1, MaxSeqLen, D) batch and returns one
// probability per label.
type Classifier interface {
	Classify(ctx context.Context, input sequence.Batch) ([]float32, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, input sequence.Batch) ([]float32, error)

func (f ClassifierFunc) Classify(ctx context.Context, input sequence.Batch) ([]float32, error) {
	return f(ctx, input)
}

// ClassifierError wraps a failed classifier call. The buffer that was being
// classified is kept.
type ClassifierError struct {
	Frames int
	Err    error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier failed on %d frames: %v", e.Frames, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// Config configures a Recognizer.
type Config struct {
	MinSeqLen int
	MaxSeqLen int
	Threshold float64
	Sentinel  float32
	// Labels maps classifier output index to sign name.
	Labels []string
	Logger *slog.Logger
}

// ConfigFromMetadata takes length bounds, sentinel and label order from the
// classifier metadata.
func ConfigFromMetadata(m model.Metadata, threshold float64) Config {
	return Config{
		MinSeqLen: m.MinSeqLen,
		MaxSeqLen: m.MaxSeqLen,
		Threshold: threshold,
		Sentinel:  m.Sentinel,
		Labels:    m.LabelOrder,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinSeqLen <= 0 {
		return fmt.Errorf("min sequence length must be positive, got %d", c.MinSeqLen)
	}
	if c.MaxSeqLen < c.MinSeqLen {
		return fmt.Errorf("max sequence length %d is below min %d", c.MaxSeqLen, c.MinSeqLen)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", c.Threshold)
	}
	if err := sequence.CheckSentinel(c.Sentinel); err != nil {
		return err
	}
	if len(c.Labels) == 0 {
		return errors.New("no labels")
	}
	return nil
}

// Decision is an emitted recognition.
type Decision struct {
	Label      string    `json:"label"`
	Index      int       `json:"index"`
	Confidence float64   `json:"confidence"`
	Frames     int       `json:"frames"`
	State      State     `json:"state"`
	Final      bool      `json:"final,omitempty"`
	Time       time.Time `json:"time"`
}

// Recognizer is the streaming state machine. It is not safe for concurrent
// use: frames of one stream are pushed in arrival order by one goroutine.
type Recognizer struct {
	cfg        Config
	classifier Classifier
	buf        sequence.Tensor
	state      State
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a recognizer in the Accumulating state with an empty buffer.
func New(cfg Config, classifier Classifier) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, errors.New("nil classifier")
	}
	return &Recognizer{
		cfg:        cfg,
		classifier: classifier,
		buf:        make(sequence.Tensor, 0, cfg.MaxSeqLen),
		state:      Accumulating,
		logger:     logging.WithComponent(cfg.Logger, "recognizer"),
		now:        time.Now,
	}, nil
}

// State returns the current state.
func (r *Recognizer) State() State {
	return r.state
}

// Len returns the number of buffered frames.
func (r *Recognizer) Len() int {
	return len(r.buf)
}

// Reset clears the buffer and returns to Accumulating, also after Cancel.
func (r *Recognizer) Reset() {
	r.clear()
}

// Push appends a frame and runs the classification the new state calls for.
// It returns a non-nil Decision when a sign is emitted.
//
// A frame that does not match the landmark schema is rejected with a
// *landmark.ShapeError before it reaches the buffer. A classifier failure
// returns a *ClassifierError and leaves the buffer as it was; if the buffer
// is full, the next Push drops its oldest frame first.
func (r *Recognizer) Push(ctx context.Context, rec landmark.FrameRecord) (*Decision, error) {
	if r.state == Cancelled {
		return nil, ErrCancelled
	}

	row, err := sequence.FlattenFrame(rec)
	if err != nil {
		return nil, err
	}

	if len(r.buf) == r.cfg.MaxSeqLen {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:len(r.buf)-1]
	}
	r.buf = append(r.buf, row)
	r.state = r.stateFor(len(r.buf))

	switch r.state {
	case Evaluating:
		label, conf, err := r.classify(ctx)
		if err != nil {
			return nil, err
		}
		if conf < r.cfg.Threshold {
			return nil, nil
		}
		d := r.decision(label, conf, false)
		r.clear()
		return d, nil

	case Forced:
		label, conf, err := r.classify(ctx)
		if err != nil {
			return nil, err
		}
		var d *Decision
		if conf >= r.cfg.Threshold {
			d = r.decision(label, conf, false)
		} else {
			r.logger.Debug("forced classification below threshold", "frames", len(r.buf), "confidence", conf)
		}
		r.clear()
		return d, nil
	}

	return nil, nil
}

// Cancel makes a final classification attempt on the buffered frames and
// moves to Cancelled. With fewer than MinSeqLen frames the attempt is
// suppressed and nothing is emitted. On a classifier failure the buffer is
// kept and the error returned.
func (r *Recognizer) Cancel(ctx context.Context) (*Decision, error) {
	if r.state == Cancelled {
		return nil, nil
	}

	if len(r.buf) < r.cfg.MinSeqLen {
		if len(r.buf) > 0 {
			r.logger.Info("final classification suppressed", "frames", len(r.buf), "min_seq_len", r.cfg.MinSeqLen)
		}
		r.buf = r.buf[:0]
		r.state = Cancelled
		return nil, nil
	}

	label, conf, err := r.classify(ctx)
	r.state = Cancelled
	if err != nil {
		return nil, err
	}

	var d *Decision
	if conf >= r.cfg.Threshold {
		d = r.decision(label, conf, true)
	}
	r.buf = r.buf[:0]
	return d, nil
}

func (r *Recognizer) stateFor(n int) State {
	switch {
	case n >= r.cfg.MaxSeqLen:
		return Forced
	case n >= r.cfg.MinSeqLen:
		return Evaluating
	default:
		return Accumulating
	}
}

// classify pads the buffer, calls the classifier and returns the argmax.
func (r *Recognizer) classify(ctx context.Context) (int, float64, error) {
	padded, err := sequence.Pad(r.buf, r.cfg.MaxSeqLen, r.cfg.Sentinel)
	if err != nil {
		return 0, 0, err
	}
	batch, err := sequence.Stack(padded)
	if err != nil {
		return 0, 0, err
	}

	probs, err := r.classifier.Classify(ctx, batch)
	if err != nil {
		return 0, 0, &ClassifierError{Frames: len(r.buf), Err: err}
	}
	if len(probs) != len(r.cfg.Labels) {
		return 0, 0, &ClassifierError{
			Frames: len(r.buf),
			Err:    &model.LabelAlignmentError{Labels: len(r.cfg.Labels), Outputs: len(probs)},
		}
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, float64(probs[best]), nil
}

func (r *Recognizer) decision(index int, conf float64, final bool) *Decision {
	return &Decision{
		Label:      r.cfg.Labels[index],
		Index:      index,
		Confidence: conf,
		Frames:     len(r.buf),
		State:      r.state,
		Final:      final,
		Time:       r.now(),
	}
}

// clear empties the buffer and returns to Accumulating.
func (r *Recognizer) clear() {
	r.buf = r.buf[:0]
	r.state = Accumulating
}
