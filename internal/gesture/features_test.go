package gesture

import (
	"testing"

	"github.com/ayusman/mudra/internal/corpus/corpustest"
	"github.com/ayusman/mudra/internal/sequence"
)

func TestFeatures_TranslationInvariantPose(t *testing.T) {
	frames := corpustest.Frames(2, 0)
	shifted := corpustest.Frames(2, 0.2)

	a, err := sequence.FlattenFrame(frames[0])
	if err != nil {
		t.Fatal(err)
	}
	b, err := sequence.FlattenFrame(shifted[0])
	if err != nil {
		t.Fatal(err)
	}

	fa, fb := Features(a), Features(b)
	if len(fa) != FeatureDim {
		t.Fatalf("len = %d, want %d", len(fa), FeatureDim)
	}
	// The arm points move with the body and stay put relative to the shoulders.
	for i := 0; i < armPoints*2; i++ {
		if diff := fa[i] - fb[i]; diff > 1e-3 || diff < -1e-3 {
			t.Errorf("arm feature %d differs: %f vs %f", i, fa[i], fb[i])
		}
	}
}

func TestFeatures_MissingHandsStayZero(t *testing.T) {
	// Frame 2 of every fixture sequence has no hands.
	row, err := sequence.FlattenFrame(corpustest.Frames(3, 0)[2])
	if err != nil {
		t.Fatal(err)
	}
	f := Features(row)
	for i := armPoints * 2; i < FeatureDim; i++ {
		if f[i] != 0 {
			t.Fatalf("hand feature %d = %f, want 0", i, f[i])
		}
	}
}

func TestPath_StopsAtPadding(t *testing.T) {
	flat, err := sequence.Flatten(corpustest.Frames(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	padded, err := sequence.Pad(flat, 7, sequence.DefaultSentinel)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(Path(padded, sequence.DefaultSentinel)); got != 3 {
		t.Errorf("path length = %d, want 3", got)
	}
}
