package gesture

import (
	"context"
	"errors"
	"testing"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/corpus/corpustest"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/sequence"
)

func seedCorpus(t *testing.T) *corpus.DirRepository {
	t.Helper()
	repo, err := corpus.NewDirRepository(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, s := range []struct {
		action string
		n      int
		offset float64
	}{
		{"hello", 6, 0},
		{"hello", 8, 0.01},
		{"thanks", 5, 0.3},
	} {
		if _, err := repo.Save(ctx, s.action, corpustest.Frames(s.n, s.offset)); err != nil {
			t.Fatal(err)
		}
	}
	return repo
}

func batch(t *testing.T, frames []landmark.FrameRecord, maxLen int) sequence.Batch {
	t.Helper()
	flat, err := sequence.Flatten(frames)
	if err != nil {
		t.Fatal(err)
	}
	padded, err := sequence.Pad(flat, maxLen, sequence.DefaultSentinel)
	if err != nil {
		t.Fatal(err)
	}
	b, err := sequence.Stack(padded)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLoadTemplates(t *testing.T) {
	templates, meta, err := LoadTemplates(context.Background(), seedCorpus(t), 0)
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}

	if len(templates) != 3 {
		t.Fatalf("got %d templates, want 3", len(templates))
	}
	if meta.MinSeqLen != 5 || meta.MaxSeqLen != 8 {
		t.Errorf("bounds = [%d, %d], want [5, 8]", meta.MinSeqLen, meta.MaxSeqLen)
	}
	if len(meta.LabelOrder) != 2 || meta.LabelOrder[0] != "hello" || meta.LabelOrder[1] != "thanks" {
		t.Errorf("label order = %v", meta.LabelOrder)
	}
	if err := meta.Validate(); err != nil {
		t.Errorf("metadata invalid: %v", err)
	}
	for _, tmpl := range templates {
		if meta.LabelOrder[tmpl.Index] != tmpl.Label {
			t.Errorf("template %s has index %d", tmpl.Label, tmpl.Index)
		}
		if len(tmpl.Path[0]) != FeatureDim {
			t.Errorf("feature width %d, want %d", len(tmpl.Path[0]), FeatureDim)
		}
	}
	if templates[2].Label != "thanks" || len(templates[2].Path) != 5 {
		t.Errorf("last template = %s with %d frames", templates[2].Label, len(templates[2].Path))
	}
}

func TestLoadTemplates_EmptyCorpus(t *testing.T) {
	repo, err := corpus.NewDirRepository(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadTemplates(context.Background(), repo, 0); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("error = %v, want ErrNoTemplates", err)
	}
}

func TestMatcher_Classify(t *testing.T) {
	templates, meta, err := LoadTemplates(context.Background(), seedCorpus(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(templates, meta, 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	ctx := context.Background()
	probs, err := m.Classify(ctx, batch(t, corpustest.Frames(6, 0), meta.MaxSeqLen))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(probs) != 2 {
		t.Fatalf("got %d probabilities, want 2", len(probs))
	}
	if probs[0] < 0.99 {
		t.Errorf("P(hello) = %f for a recorded hello", probs[0])
	}
	if sum := probs[0] + probs[1]; sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %f", sum)
	}

	probs, err = m.Classify(ctx, batch(t, corpustest.Frames(5, 0.3), meta.MaxSeqLen))
	if err != nil {
		t.Fatal(err)
	}
	if probs[1] <= probs[0] {
		t.Errorf("probabilities = %v, want thanks ahead", probs)
	}
}

func TestMatcher_Match(t *testing.T) {
	templates, meta, err := LoadTemplates(context.Background(), seedCorpus(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(templates, meta, 0)
	if err != nil {
		t.Fatal(err)
	}

	flat, err := sequence.Flatten(corpustest.Frames(6, 0))
	if err != nil {
		t.Fatal(err)
	}
	matches := m.Match(Path(flat, meta.Sentinel))
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].Distance != 0 || matches[0].Template.Repeat != 0 || matches[0].Score != 1 {
		t.Errorf("best match = %+v", matches[0])
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches not sorted by score")
		}
	}
	if m.Match(nil) != nil {
		t.Error("empty path should match nothing")
	}
}

func TestMatcher_Errors(t *testing.T) {
	templates, meta, err := LoadTemplates(context.Background(), seedCorpus(t), 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewMatcher(nil, meta, 0); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("NewMatcher(nil) error = %v", err)
	}
	bad := append([]Template(nil), templates...)
	bad[0].Index = 1
	if _, err := NewMatcher(bad, meta, 0); err == nil {
		t.Error("expected error for a misaligned template")
	}

	m, err := NewMatcher(templates, meta, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := m.Classify(ctx, sequence.Batch{N: 1, L: 2, D: 3, Data: make([]float32, 6)}); err == nil {
		t.Error("expected error for a wrong frame width")
	}

	padding := sequence.Batch{N: 1, L: 1, D: landmark.FrameDim, Data: make([]float32, landmark.FrameDim)}
	for i := range padding.Data {
		padding.Data[i] = sequence.DefaultSentinel
	}
	if _, err := m.Classify(ctx, padding); err == nil {
		t.Error("expected error for an all-padding input")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Classify(cancelled, batch(t, corpustest.Frames(5, 0), meta.MaxSeqLen)); !errors.Is(err, context.Canceled) {
		t.Errorf("Classify() error = %v, want context.Canceled", err)
	}
}
