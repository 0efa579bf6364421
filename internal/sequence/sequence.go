// Package sequence turns landmark sequences into the fixed-shape tensors a
// recurrent classifier consumes.
//
// Sequences are flattened frame by frame in landmark.Parts order and padded
// at the end with a sentinel value that no real coordinate can take, so that
// a masking layer can drop whole padded timesteps.
package sequence

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/mudra/internal/landmark"
)

// DefaultSentinel marks padded timesteps. Landmark coordinates are normalized
// to roughly [0, 1], so this is several orders of magnitude out of range.
const DefaultSentinel float32 = -1000

// minSentinelMagnitude is the smallest accepted |sentinel|.
const minSentinelMagnitude = 100

// ErrNoSequences is returned when length bounds are requested for an empty corpus.
var ErrNoSequences = errors.New("no sequences")

// Tensor is a (T, D) sequence: one flattened row per frame.
type Tensor [][]float32

// Len returns the number of timesteps.
func (t Tensor) Len() int {
	return len(t)
}

// Width returns D, the row length, or 0 for an empty tensor.
func (t Tensor) Width() int {
	if len(t) == 0 {
		return 0
	}
	return len(t[0])
}

// Batch is an (N, L, D) tensor stored row-major in Data.
type Batch struct {
	N, L, D int
	Data    []float32
}

// Shape returns the batch dimensions in ONNX order.
func (b Batch) Shape() []int64 {
	return []int64{int64(b.N), int64(b.L), int64(b.D)}
}

// Row returns a view of the n-th sequence in the batch.
func (b Batch) Row(n int) Tensor {
	row := make(Tensor, b.L)
	base := n * b.L * b.D
	for i := range row {
		start := base + i*b.D
		row[i] = b.Data[start : start+b.D : start+b.D]
	}
	return row
}

// Bounds are the shortest and longest sequence lengths of a corpus.
type Bounds struct {
	Min int `json:"min_len"`
	Max int `json:"max_len"`
}

// FlattenFrame concatenates the part vectors of one record in landmark.Parts order.
func FlattenFrame(rec landmark.FrameRecord) ([]float32, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	row := make([]float32, 0, landmark.FrameDim)
	for _, part := range landmark.Parts {
		for _, pt := range rec[part] {
			for _, v := range pt {
				row = append(row, float32(v))
			}
		}
	}
	return row, nil
}

// Flatten converts a sequence of records into a (T, D) tensor. A record with
// a missing or misshapen part fails with a *landmark.ShapeError naming the frame.
func Flatten(frames []landmark.FrameRecord) (Tensor, error) {
	t := make(Tensor, len(frames))
	for i, rec := range frames {
		row, err := FlattenFrame(rec)
		if err != nil {
			var se *landmark.ShapeError
			if errors.As(err, &se) {
				se.Frame = i
			}
			return nil, err
		}
		t[i] = row
	}
	return t, nil
}

// Pad extends t to targetLen timesteps by appending sentinel rows. A tensor
// already at targetLen is returned unchanged. A longer tensor is a contract
// violation and fails with a *landmark.ShapeError; it is never truncated.
// The input is not modified.
func Pad(t Tensor, targetLen int, sentinel float32) (Tensor, error) {
	if targetLen <= 0 {
		return nil, fmt.Errorf("invalid target length %d", targetLen)
	}
	if len(t) > targetLen {
		return nil, &landmark.ShapeError{
			Frame:  -1,
			Reason: fmt.Sprintf("sequence has %d frames, longer than target length %d", len(t), targetLen),
		}
	}

	width := t.Width()
	if width == 0 {
		width = landmark.FrameDim
	}
	for i, row := range t {
		if len(row) != width {
			return nil, &landmark.ShapeError{
				Frame:  i,
				Reason: fmt.Sprintf("row has %d values, want %d", len(row), width),
			}
		}
	}

	if len(t) == targetLen {
		return t, nil
	}

	padded := make(Tensor, targetLen)
	copy(padded, t)
	for i := len(t); i < targetLen; i++ {
		row := make([]float32, width)
		for j := range row {
			row[j] = sentinel
		}
		padded[i] = row
	}
	return padded, nil
}

// Stack packs equally shaped tensors into a batch.
func Stack(rows ...Tensor) (Batch, error) {
	if len(rows) == 0 {
		return Batch{}, ErrNoSequences
	}
	l, d := rows[0].Len(), rows[0].Width()
	b := Batch{N: len(rows), L: l, D: d, Data: make([]float32, 0, len(rows)*l*d)}
	for n, t := range rows {
		if t.Len() != l {
			return Batch{}, &landmark.ShapeError{Frame: -1, Reason: fmt.Sprintf("sequence %d has %d frames, want %d", n, t.Len(), l)}
		}
		for i, row := range t {
			if len(row) != d {
				return Batch{}, &landmark.ShapeError{Frame: i, Reason: fmt.Sprintf("sequence %d row has %d values, want %d", n, len(row), d)}
			}
			b.Data = append(b.Data, row...)
		}
	}
	return b, nil
}

// IsPadding reports whether every value of row equals the sentinel.
func IsPadding(row []float32, sentinel float32) bool {
	if len(row) == 0 {
		return false
	}
	for _, v := range row {
		if v != sentinel {
			return false
		}
	}
	return true
}

// CheckSentinel rejects values that a real coordinate could take.
func CheckSentinel(sentinel float32) error {
	s := float64(sentinel)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("sentinel %v is not finite", sentinel)
	}
	if math.Abs(s) < minSentinelMagnitude {
		return fmt.Errorf("sentinel %v is too close to the landmark coordinate range", sentinel)
	}
	return nil
}

// ComputeLengthBounds returns the min and max of the given sequence lengths.
func ComputeLengthBounds(lengths []int) (Bounds, error) {
	if len(lengths) == 0 {
		return Bounds{}, ErrNoSequences
	}
	b := Bounds{Min: lengths[0], Max: lengths[0]}
	for _, n := range lengths {
		if n <= 0 {
			return Bounds{}, fmt.Errorf("invalid sequence length %d", n)
		}
		b.Min = min(b.Min, n)
		b.Max = max(b.Max, n)
	}
	return b, nil
}
