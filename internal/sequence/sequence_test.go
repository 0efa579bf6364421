package sequence

import (
	"errors"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/landmark"
)

// frames builds n vectorized frames with slightly different poses.
func frames(t *testing.T, n int) []landmark.FrameRecord {
	t.Helper()
	out := make([]landmark.FrameRecord, n)
	for i := range out {
		rec, err := landmark.Vectorize(detector.FullResult(float64(i) * 0.01))
		if err != nil {
			t.Fatalf("vectorize frame %d: %v", i, err)
		}
		out[i] = rec
	}
	return out
}

func tensorsEqual(a, b Tensor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestFlatten(t *testing.T) {
	seq := frames(t, 3)

	tensor, err := Flatten(seq)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	if tensor.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tensor.Len())
	}
	if tensor.Width() != landmark.FrameDim {
		t.Errorf("Width() = %d, want %d", tensor.Width(), landmark.FrameDim)
	}

	t.Run("parts are concatenated in fixed order", func(t *testing.T) {
		row := tensor[0]
		offset := 0
		for _, part := range landmark.Parts {
			first := seq[0][part][0]
			for k := 0; k < landmark.Dims; k++ {
				if row[offset+k] != float32(first[k]) {
					t.Errorf("%s value %d at offset %d = %v, want %v", part, k, offset+k, row[offset+k], first[k])
				}
			}
			offset += part.Len()
		}
	})

	t.Run("missing part is a shape error", func(t *testing.T) {
		bad := frames(t, 2)
		delete(bad[1], landmark.LeftHand)

		_, err := Flatten(bad)

		var se *landmark.ShapeError
		if !errors.As(err, &se) {
			t.Fatalf("expected ShapeError, got %v", err)
		}
		if se.Frame != 1 || se.Part != landmark.LeftHand {
			t.Errorf("got frame %d part %s, want frame 1 part LEFT_HAND", se.Frame, se.Part)
		}
	})
}

func TestPad(t *testing.T) {
	tensor, err := Flatten(frames(t, 3))
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	t.Run("appends sentinel timesteps at the end", func(t *testing.T) {
		padded, err := Pad(tensor, 5, DefaultSentinel)
		if err != nil {
			t.Fatalf("Pad() error = %v", err)
		}
		if padded.Len() != 5 {
			t.Fatalf("Len() = %d, want 5", padded.Len())
		}
		for i := 0; i < 3; i++ {
			if IsPadding(padded[i], DefaultSentinel) {
				t.Errorf("row %d should be real data", i)
			}
		}
		for i := 3; i < 5; i++ {
			if !IsPadding(padded[i], DefaultSentinel) {
				t.Errorf("row %d should be padding", i)
			}
			if len(padded[i]) != landmark.FrameDim {
				t.Errorf("row %d has width %d, want %d", i, len(padded[i]), landmark.FrameDim)
			}
		}
		if tensor.Len() != 3 {
			t.Errorf("input was modified: Len() = %d", tensor.Len())
		}
	})

	t.Run("sequence at target length is returned unchanged", func(t *testing.T) {
		padded, err := Pad(tensor, 3, DefaultSentinel)
		if err != nil {
			t.Fatalf("Pad() error = %v", err)
		}
		if !tensorsEqual(padded, tensor) {
			t.Error("expected tensor to be unchanged")
		}
		for _, row := range padded {
			if IsPadding(row, DefaultSentinel) {
				t.Error("no sentinel row expected")
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, target := range []int{3, 4, 8} {
			once, err := Pad(tensor, target, DefaultSentinel)
			if err != nil {
				t.Fatalf("Pad(%d) error = %v", target, err)
			}
			twice, err := Pad(once, target, DefaultSentinel)
			if err != nil {
				t.Fatalf("Pad(Pad(%d)) error = %v", target, err)
			}
			if !tensorsEqual(once, twice) {
				t.Errorf("Pad is not idempotent for target %d", target)
			}
		}
	})

	t.Run("longer than target fails instead of truncating", func(t *testing.T) {
		padded, err := Pad(tensor, 2, DefaultSentinel)

		var se *landmark.ShapeError
		if !errors.As(err, &se) {
			t.Fatalf("expected ShapeError, got %v", err)
		}
		if padded != nil {
			t.Error("expected nil tensor on error")
		}
	})

	t.Run("empty sequence pads to full sentinel", func(t *testing.T) {
		padded, err := Pad(nil, 2, DefaultSentinel)
		if err != nil {
			t.Fatalf("Pad() error = %v", err)
		}
		for i, row := range padded {
			if !IsPadding(row, DefaultSentinel) || len(row) != landmark.FrameDim {
				t.Errorf("row %d is not a full sentinel row", i)
			}
		}
	})

	t.Run("ragged rows are rejected", func(t *testing.T) {
		ragged := Tensor{make([]float32, 4), make([]float32, 3)}
		if _, err := Pad(ragged, 4, DefaultSentinel); err == nil {
			t.Error("expected error for ragged tensor")
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		if _, err := Pad(tensor, 0, DefaultSentinel); err == nil {
			t.Error("expected error for zero target length")
		}
	})
}

func TestStack(t *testing.T) {
	a, _ := Flatten(frames(t, 2))
	b, _ := Flatten(frames(t, 4))

	pa, err := Pad(a, 4, DefaultSentinel)
	if err != nil {
		t.Fatalf("Pad() error = %v", err)
	}

	batch, err := Stack(pa, b)
	if err != nil {
		t.Fatalf("Stack() error = %v", err)
	}

	shape := batch.Shape()
	if shape[0] != 2 || shape[1] != 4 || shape[2] != int64(landmark.FrameDim) {
		t.Errorf("Shape() = %v, want [2 4 %d]", shape, landmark.FrameDim)
	}
	if len(batch.Data) != 2*4*landmark.FrameDim {
		t.Errorf("len(Data) = %d", len(batch.Data))
	}
	if !tensorsEqual(batch.Row(1), b) {
		t.Error("Row(1) does not match the second input")
	}
	if !IsPadding(batch.Row(0)[3], DefaultSentinel) {
		t.Error("Row(0) should end with padding")
	}

	if _, err := Stack(a, b); err == nil {
		t.Error("expected error stacking different lengths")
	}
	if _, err := Stack(); !errors.Is(err, ErrNoSequences) {
		t.Errorf("expected ErrNoSequences, got %v", err)
	}
}

func TestCheckSentinel(t *testing.T) {
	tests := []struct {
		sentinel float32
		wantErr  bool
	}{
		{DefaultSentinel, false},
		{-100, false},
		{500, false},
		{-10, true},
		{0, true},
		{1, true},
	}

	for _, tt := range tests {
		err := CheckSentinel(tt.sentinel)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckSentinel(%v) error = %v, wantErr %v", tt.sentinel, err, tt.wantErr)
		}
	}
}

func TestComputeLengthBounds(t *testing.T) {
	b, err := ComputeLengthBounds([]int{12, 7, 30, 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Min != 7 || b.Max != 30 {
		t.Errorf("bounds = %+v, want {7 30}", b)
	}

	if _, err := ComputeLengthBounds(nil); !errors.Is(err, ErrNoSequences) {
		t.Errorf("expected ErrNoSequences, got %v", err)
	}
	if _, err := ComputeLengthBounds([]int{3, 0}); err == nil {
		t.Error("expected error for zero length")
	}
}
