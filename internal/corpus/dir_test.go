package corpus_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/corpus/corpustest"
	"github.com/ayusman/mudra/internal/landmark"
)

func newDirRepo(t *testing.T) *corpus.DirRepository {
	t.Helper()
	repo, err := corpus.NewDirRepository(filepath.Join(t.TempDir(), "actions"), nil)
	if err != nil {
		t.Fatalf("NewDirRepository() error = %v", err)
	}
	return repo
}

func TestDirRepository(t *testing.T) {
	corpustest.RunRepositoryTests(t, func(t *testing.T) corpus.Repository {
		return newDirRepo(t)
	})
}

func TestDirRepository_Layout(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	key, err := repo.Save(ctx, "hello", corpustest.Frames(3, 0))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := filepath.Join(repo.Root(), "hello", "hello__0.json")
	if key.Location != want {
		t.Errorf("Location = %q, want %q", key.Location, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("record file missing: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(repo.Root(), "hello"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("action dir has %d entries, want 1 (temp files must be removed)", len(entries))
	}
}

func TestDirRepository_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	if _, err := repo.Save(ctx, "hello", corpustest.Frames(1, 0)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	dir := filepath.Join(repo.Root(), "hello")
	for _, name := range []string{"notes.txt", "hello__7.npy", "hello__01.json", "hello__x.json", "other__3.json"} {
		os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644)
	}
	os.MkdirAll(filepath.Join(repo.Root(), "empty"), 0o755)
	os.WriteFile(filepath.Join(repo.Root(), "stray.json"), []byte("{}"), 0o644)

	repeats, err := repo.Repeats(ctx, "hello")
	if err != nil {
		t.Fatalf("Repeats() error = %v", err)
	}
	if len(repeats) != 1 || repeats[0] != 0 {
		t.Errorf("Repeats() = %v, want [0]", repeats)
	}

	actions, err := repo.ListActions(ctx)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(actions) != 1 || actions[0] != "hello" {
		t.Errorf("ListActions() = %v, want [hello]", actions)
	}
}

func TestDirRepository_NeverOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	if _, err := repo.Save(ctx, "hello", corpustest.Frames(2, 0)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Occupy the next path with something the scan does not count, as a
	// writer in another process would between scan and publish.
	if err := os.Mkdir(repo.RepeatPath("hello", 1), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	_, err := repo.Save(ctx, "hello", corpustest.Frames(2, 1))
	if !errors.Is(err, corpus.ErrRepeatIndexRace) {
		t.Fatalf("Save() error = %v, want ErrRepeatIndexRace", err)
	}
	var race *corpus.RepeatIndexRaceError
	if !errors.As(err, &race) {
		t.Fatalf("expected *RepeatIndexRaceError, got %T", err)
	}
	if race.Action != "hello" || race.Repeat != 1 {
		t.Errorf("race = %+v, want hello/1", race)
	}

	rep, err := repo.Load(ctx, "hello", 0)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rep.Frames) != 2 {
		t.Errorf("repeat 0 was modified")
	}
}

func TestDirRepository_SchemaVersion(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	dir := filepath.Join(repo.Root(), "old")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "old__0.json"),
		[]byte(`{"schema_version":0,"action":"old","repeat":0,"frames":[]}`), 0o644)

	_, err := repo.Load(ctx, "old", 0)
	if !errors.Is(err, corpus.ErrSchemaVersion) {
		t.Fatalf("Load() error = %v, want ErrSchemaVersion", err)
	}
	var re *corpus.RepeatError
	if !errors.As(err, &re) || re.Action != "old" || re.Repeat != 0 {
		t.Errorf("expected RepeatError naming old/0, got %v", err)
	}

	if _, err := repo.FrameCount(ctx, "old", 0); !errors.Is(err, corpus.ErrSchemaVersion) {
		t.Errorf("FrameCount() error = %v, want ErrSchemaVersion", err)
	}
}

func TestDirRepository_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	dir := filepath.Join(repo.Root(), "bad")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "bad__0.json"),
		[]byte(`{"schema_version":1,"action":"bad","repeat":0,"frames":[{"POSE":[[0,0,0,1]]}]}`), 0o644)

	_, err := repo.Load(ctx, "bad", 0)
	var re *corpus.RepeatError
	if !errors.As(err, &re) {
		t.Fatalf("Load() error = %v, want RepeatError", err)
	}
}

func TestDirRepository_PointWidth(t *testing.T) {
	ctx := context.Background()
	repo := newDirRepo(t)

	dir := filepath.Join(repo.Root(), "wide")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i, dims := range []int{3, 5} {
		data := corpustest.RecordJSON("wide", i, corpustest.FramesJSON(2, dims))
		if err := os.WriteFile(repo.RepeatPath("wide", i), data, 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := repo.Load(ctx, "wide", i)
		var re *corpus.RepeatError
		var se *landmark.ShapeError
		if !errors.As(err, &re) || !errors.As(err, &se) {
			t.Fatalf("Load() with %d values per point error = %v, want RepeatError wrapping ShapeError", dims, err)
		}
		if re.Repeat != i || se.Frame != 0 {
			t.Errorf("error names repeat %d frame %d", re.Repeat, se.Frame)
		}
	}

	data := corpustest.RecordJSON("wide", 2, corpustest.FramesJSON(2, landmark.Dims))
	if err := os.WriteFile(repo.RepeatPath("wide", 2), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Load(ctx, "wide", 2); err != nil {
		t.Errorf("Load() of a current-width record error = %v", err)
	}
}

func TestDirRepository_CancelledContext(t *testing.T) {
	repo := newDirRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.Save(ctx, "hello", corpustest.Frames(1, 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}
