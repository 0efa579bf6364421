// Package corpustest provides fixtures and a behavioural test suite shared by
// every corpus.Repository implementation.
package corpustest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/landmark"
)

// Frames returns n vectorized frames. Frame i uses a synthetic pose shifted
// by offset+i/100; every third frame has no hands.
func Frames(n int, offset float64) []landmark.FrameRecord {
	frames := make([]landmark.FrameRecord, n)
	for i := range frames {
		res := detector.FullResult(offset + float64(i)/100)
		if i%3 == 2 {
			res.LeftHand = nil
			res.RightHand = nil
		}
		rec, err := landmark.Vectorize(res)
		if err != nil {
			panic(err)
		}
		frames[i] = rec
	}
	return frames
}

// FramesJSON encodes Frames(n, 0) with dims values per point. Values past
// landmark.Dims are 0.5.
func FramesJSON(n, dims int) []byte {
	frames := Frames(n, 0)
	out := make([]map[landmark.Part][][]float64, len(frames))
	for i, rec := range frames {
		m := make(map[landmark.Part][][]float64, len(rec))
		for part, pts := range rec {
			rows := make([][]float64, len(pts))
			for j, pt := range pts {
				row := make([]float64, dims)
				copy(row, pt[:])
				for k := landmark.Dims; k < dims; k++ {
					row[k] = 0.5
				}
				rows[j] = row
			}
			m[part] = rows
		}
		out[i] = m
	}
	data, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}
	return data
}

// RecordJSON wraps encoded frames in a current-schema envelope.
func RecordJSON(action string, repeat int, frames []byte) []byte {
	return fmt.Appendf(nil, `{"schema_version":%d,"action":%q,"repeat":%d,"frames":%s}`,
		landmark.SchemaVersion, action, repeat, frames)
}

// RunRepositoryTests exercises the corpus.Repository contract. newRepo must
// return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) corpus.Repository) {
	ctx := context.Background()

	t.Run("repeat indices start at zero", func(t *testing.T) {
		repo := newRepo(t)

		last, err := repo.LastRepeat(ctx, "hello")
		if err != nil {
			t.Fatalf("LastRepeat() error = %v", err)
		}
		if last != -1 {
			t.Errorf("LastRepeat() = %d, want -1", last)
		}

		for want := 0; want < 2; want++ {
			key, err := repo.Save(ctx, "hello", Frames(4, float64(want)))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if key.Action != "hello" || key.Repeat != want {
				t.Errorf("Save() key = %+v, want repeat %d", key, want)
			}
			if key.Location == "" {
				t.Error("Save() returned an empty location")
			}
		}

		last, err = repo.LastRepeat(ctx, "hello")
		if err != nil {
			t.Fatalf("LastRepeat() error = %v", err)
		}
		if last != 1 {
			t.Errorf("LastRepeat() = %d, want 1", last)
		}
	})

	t.Run("load returns the saved frames", func(t *testing.T) {
		repo := newRepo(t)
		first := Frames(5, 0)
		second := Frames(7, 0.2)

		if _, err := repo.Save(ctx, "thanks", first); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := repo.Save(ctx, "thanks", second); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		for i, want := range [][]landmark.FrameRecord{first, second} {
			rep, err := repo.Load(ctx, "thanks", i)
			if err != nil {
				t.Fatalf("Load(%d) error = %v", i, err)
			}
			if rep.Action != "thanks" || rep.Index != i || rep.SchemaVersion != landmark.SchemaVersion {
				t.Errorf("Load(%d) header = %q/%d/v%d", i, rep.Action, rep.Index, rep.SchemaVersion)
			}
			if len(rep.Frames) != len(want) {
				t.Fatalf("Load(%d) has %d frames, want %d", i, len(rep.Frames), len(want))
			}
			for f := range want {
				if !rep.Frames[f].Equal(want[f]) {
					t.Errorf("Load(%d) frame %d differs from the saved frame", i, f)
				}
			}

			count, err := repo.FrameCount(ctx, "thanks", i)
			if err != nil {
				t.Fatalf("FrameCount(%d) error = %v", i, err)
			}
			if count != len(want) {
				t.Errorf("FrameCount(%d) = %d, want %d", i, count, len(want))
			}
		}
	})

	t.Run("missing repeat is not found", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Save(ctx, "yes", Frames(2, 0)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		cases := []struct {
			action string
			repeat int
		}{
			{"yes", 1},
			{"yes", -1},
			{"no", 0},
		}
		for _, c := range cases {
			if _, err := repo.Load(ctx, c.action, c.repeat); !errors.Is(err, corpus.ErrNotFound) {
				t.Errorf("Load(%q, %d) error = %v, want ErrNotFound", c.action, c.repeat, err)
			}
			if _, err := repo.FrameCount(ctx, c.action, c.repeat); !errors.Is(err, corpus.ErrNotFound) {
				t.Errorf("FrameCount(%q, %d) error = %v, want ErrNotFound", c.action, c.repeat, err)
			}
		}
	})

	t.Run("empty sequence writes nothing", func(t *testing.T) {
		repo := newRepo(t)

		if _, err := repo.Save(ctx, "hello", nil); !errors.Is(err, corpus.ErrEmptySequence) {
			t.Fatalf("Save(nil) error = %v, want ErrEmptySequence", err)
		}

		actions, err := repo.ListActions(ctx)
		if err != nil {
			t.Fatalf("ListActions() error = %v", err)
		}
		if len(actions) != 0 {
			t.Errorf("ListActions() = %v, want empty", actions)
		}
		if last, _ := repo.LastRepeat(ctx, "hello"); last != -1 {
			t.Errorf("LastRepeat() = %d, want -1", last)
		}
	})

	t.Run("malformed frame is rejected", func(t *testing.T) {
		repo := newRepo(t)
		frames := Frames(3, 0)
		delete(frames[1], landmark.Face)

		_, err := repo.Save(ctx, "hello", frames)
		var se *landmark.ShapeError
		if !errors.As(err, &se) {
			t.Fatalf("Save() error = %v, want ShapeError", err)
		}
		if se.Frame != 1 {
			t.Errorf("ShapeError.Frame = %d, want 1", se.Frame)
		}
	})

	t.Run("invalid action name", func(t *testing.T) {
		repo := newRepo(t)
		for _, name := range []string{"", "../etc", "a/b", ".hidden"} {
			if _, err := repo.Save(ctx, name, Frames(1, 0)); !errors.Is(err, corpus.ErrInvalidName) {
				t.Errorf("Save(%q) error = %v, want ErrInvalidName", name, err)
			}
		}
	})

	t.Run("actions are listed in sorted order", func(t *testing.T) {
		repo := newRepo(t)
		for _, a := range []string{"zulu", "alpha", "Mike", "mike"} {
			if _, err := repo.Save(ctx, a, Frames(1, 0)); err != nil {
				t.Fatalf("Save(%q) error = %v", a, err)
			}
		}

		actions, err := repo.ListActions(ctx)
		if err != nil {
			t.Fatalf("ListActions() error = %v", err)
		}
		want := []string{"Mike", "alpha", "mike", "zulu"}
		if len(actions) != len(want) {
			t.Fatalf("ListActions() = %v, want %v", actions, want)
		}
		for i := range want {
			if actions[i] != want[i] {
				t.Errorf("ListActions()[%d] = %q, want %q", i, actions[i], want[i])
			}
		}
	})

	t.Run("concurrent saves get distinct indices", func(t *testing.T) {
		repo := newRepo(t)
		const writers = 8

		var wg sync.WaitGroup
		keys := make([]corpus.Key, writers)
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				keys[i], errs[i] = repo.Save(ctx, "race", Frames(2, float64(i)))
			}(i)
		}
		wg.Wait()

		var got []int
		for i := range keys {
			if errs[i] != nil {
				t.Fatalf("writer %d: %v", i, errs[i])
			}
			got = append(got, keys[i].Repeat)
		}
		sort.Ints(got)
		for i, n := range got {
			if n != i {
				t.Fatalf("repeat indices = %v, want 0..%d", got, writers-1)
			}
		}

		repeats, err := repo.Repeats(ctx, "race")
		if err != nil {
			t.Fatalf("Repeats() error = %v", err)
		}
		if len(repeats) != writers {
			t.Errorf("Repeats() = %v, want %d entries", repeats, writers)
		}
	})
}
