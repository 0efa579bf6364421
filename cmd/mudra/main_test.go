package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/corpus/corpustest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func testMetadata() model.Metadata {
	return model.Metadata{
		SchemaVersion: landmark.SchemaVersion,
		MinSeqLen:     10,
		MaxSeqLen:     40,
		FrameDim:      landmark.FrameDim,
		Sentinel:      sequence.DefaultSentinel,
		LabelOrder:    []string{"hello", "thanks"},
	}
}

func TestOpenCorpus(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{config.BackendSQLite, config.BackendDir} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			repo, closeRepo, err := openCorpus(ctx, cfg, backend, logging.Discard())
			if err != nil {
				t.Fatalf("openCorpus() error = %v", err)
			}
			defer closeRepo()

			if _, err := repo.Save(ctx, "hello", corpustest.Frames(2, 0)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			want := cfg.DBPath()
			if backend == config.BackendDir {
				want = filepath.Join(cfg.ActionsDir(), "hello")
			}
			if _, err := os.Stat(want); err != nil {
				t.Errorf("expected %s to exist: %v", want, err)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, closeRepo, err := openCorpus(ctx, testConfig(t), "mongo", logging.Discard())
		if err == nil {
			t.Error("expected error for unknown backend")
		}
		if closeRepo == nil || closeRepo() != nil {
			t.Error("close function must be usable on error")
		}
	})
}

func TestRecognizerConfig(t *testing.T) {
	meta := testMetadata()

	t.Run("metadata defaults", func(t *testing.T) {
		cfg := testConfig(t)
		rc, err := recognizerConfig(cfg, meta, logging.Discard())
		if err != nil {
			t.Fatalf("recognizerConfig() error = %v", err)
		}
		if rc.MinSeqLen != 10 || rc.MaxSeqLen != 40 || rc.Threshold != config.DefaultThreshold {
			t.Errorf("config = %+v", rc)
		}
		if len(rc.Labels) != 2 || rc.Labels[1] != "thanks" {
			t.Errorf("labels = %v", rc.Labels)
		}
	})

	t.Run("min override", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MinSeqLen = 20
		cfg.MaxSeqLen = 40
		rc, err := recognizerConfig(cfg, meta, logging.Discard())
		if err != nil {
			t.Fatalf("recognizerConfig() error = %v", err)
		}
		if rc.MinSeqLen != 20 {
			t.Errorf("MinSeqLen = %d, want 20", rc.MinSeqLen)
		}
	})

	t.Run("max must match the model", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxSeqLen = 30
		if _, err := recognizerConfig(cfg, meta, logging.Discard()); err == nil {
			t.Error("expected error for a max length the model cannot take")
		}
	})

	t.Run("min above max", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MinSeqLen = 41
		if _, err := recognizerConfig(cfg, meta, logging.Discard()); err == nil {
			t.Error("expected error for min above max")
		}
	})
}

func TestLoadClassifier_NoModelEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	repo, err := corpus.NewDirRepository(cfg.ActionsDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	c, _, closeClassifier, err := loadClassifier(ctx, cfg, repo, logging.Discard())
	if err != nil || c != nil {
		t.Errorf("loadClassifier() = %v, %v; want nil, nil", c, err)
	}
	if closeClassifier == nil {
		t.Error("close function is nil")
	}
}

func TestLoadClassifier_TemplateFallback(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.MaxSeqLen = 50
	repo, err := corpus.NewDirRepository(cfg.ActionsDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	for _, action := range []string{"hello", "thanks"} {
		if _, err := repo.Save(ctx, action, corpustest.Frames(4, 0)); err != nil {
			t.Fatal(err)
		}
	}

	c, rc, closeClassifier, err := loadClassifier(ctx, cfg, repo, logging.Discard())
	if err != nil {
		t.Fatalf("loadClassifier() error = %v", err)
	}
	defer closeClassifier()

	if _, ok := c.(*gesture.Matcher); !ok {
		t.Fatalf("classifier = %T, want *gesture.Matcher", c)
	}
	if rc.MinSeqLen != 4 || rc.MaxSeqLen != 50 {
		t.Errorf("bounds = [%d, %d], want [4, 50]", rc.MinSeqLen, rc.MaxSeqLen)
	}
	if len(rc.Labels) != 2 {
		t.Errorf("labels = %v", rc.Labels)
	}
}

func TestLoadClassifier_MissingMetadata(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelPath = filepath.Join(cfg.DataDir, "model.onnx")
	if _, _, _, err := loadClassifier(context.Background(), cfg, nil, logging.Discard()); err == nil {
		t.Error("expected error without metadata.json")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := run([]string{"dance"}); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := run(nil); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("run(nil) error = %v, want flag.ErrHelp", err)
	}
	for _, c := range commands {
		if _, ok := lookup(c.name); !ok {
			t.Errorf("lookup(%q) failed", c.name)
		}
	}
}

func TestFindWebDir(t *testing.T) {
	dataDir := t.TempDir()
	if got := findWebDir(dataDir); got != "" {
		// a web/ directory next to the test binary would be found first
		if _, err := os.Stat("web"); err != nil {
			t.Errorf("findWebDir() = %q, want empty", got)
		}
	}

	if err := os.Mkdir(filepath.Join(dataDir, "web"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := findWebDir(dataDir); got == "" {
		t.Error("findWebDir() should find <data>/web")
	}
}
