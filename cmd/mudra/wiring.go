package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// EnvONNXRuntimeLib points at libonnxruntime when it is not on the default
// loader path.
const EnvONNXRuntimeLib = "MUDRA_ONNXRUNTIME_LIB"

// openCorpus opens the configured corpus backend. The returned close
// function is never nil.
func openCorpus(ctx context.Context, cfg config.Config, backend string, logger *slog.Logger) (corpus.Repository, func() error, error) {
	nop := func() error { return nil }

	switch backend {
	case config.BackendDir:
		repo, err := corpus.NewDirRepository(cfg.ActionsDir(), logger)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to open corpus directory: %w", err)
		}
		return repo, nop, nil

	case config.BackendPostgres:
		st, err := store.NewPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st.Corpus(), st.Close, nil

	case config.BackendSQLite, "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nop, fmt.Errorf("failed to create data dir: %w", err)
		}
		st, err := store.New(cfg.DBPath(), logger)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to initialize database: %w", err)
		}
		return st.Corpus(), st.Close, nil

	default:
		return nil, nop, fmt.Errorf("unknown corpus backend %q", backend)
	}
}

// loadClassifier loads the ONNX model and its metadata. Without a model it
// falls back to DTW template matching over the corpus. It returns a nil
// classifier when neither is available. The close function is never nil.
func loadClassifier(ctx context.Context, cfg config.Config, repo corpus.Repository, logger *slog.Logger) (recognizer.Classifier, recognizer.Config, func() error, error) {
	nop := func() error { return nil }
	if cfg.ModelPath == "" {
		return loadMatcher(ctx, cfg, repo, logger)
	}

	meta, err := model.LoadMetadata(cfg.ModelMetadataPath())
	if err != nil {
		return nil, recognizer.Config{}, nop, fmt.Errorf("failed to load model metadata: %w", err)
	}
	rc, err := recognizerConfig(cfg, meta, logger)
	if err != nil {
		return nil, recognizer.Config{}, nop, err
	}

	classifier, err := model.NewONNXClassifier(model.ONNXConfig{
		ModelPath:         cfg.ModelPath,
		SharedLibraryPath: os.Getenv(EnvONNXRuntimeLib),
	}, meta)
	if err != nil {
		return nil, recognizer.Config{}, nop, fmt.Errorf("failed to load model: %w", err)
	}

	logger.Info("classifier loaded",
		"model", cfg.ModelPath,
		"labels", len(meta.LabelOrder),
		"min_seq_len", rc.MinSeqLen,
		"max_seq_len", rc.MaxSeqLen)
	return classifier, rc, classifier.Close, nil
}

func loadMatcher(ctx context.Context, cfg config.Config, repo corpus.Repository, logger *slog.Logger) (recognizer.Classifier, recognizer.Config, func() error, error) {
	nop := func() error { return nil }
	if repo == nil {
		return nil, recognizer.Config{}, nop, nil
	}

	templates, meta, err := gesture.LoadTemplates(ctx, repo, 0)
	if errors.Is(err, gesture.ErrNoTemplates) {
		logger.Warn("no model configured and the corpus is empty, translation disabled")
		return nil, recognizer.Config{}, nop, nil
	}
	if err != nil {
		return nil, recognizer.Config{}, nop, fmt.Errorf("failed to load templates: %w", err)
	}
	// Template matching takes any input length.
	if cfg.MaxSeqLen > 0 {
		meta.MaxSeqLen = cfg.MaxSeqLen
	}

	matcher, err := gesture.NewMatcher(templates, meta, 0)
	if err != nil {
		return nil, recognizer.Config{}, nop, err
	}
	rc, err := recognizerConfig(cfg, matcher.Metadata(), logger)
	if err != nil {
		return nil, recognizer.Config{}, nop, err
	}

	logger.Warn("no model configured, matching against recorded templates",
		"templates", len(templates),
		"labels", len(meta.LabelOrder),
		"min_seq_len", rc.MinSeqLen,
		"max_seq_len", rc.MaxSeqLen)
	return matcher, rc, nop, nil
}

// recognizerConfig applies the configured threshold and length overrides to
// the model metadata. The model input length is fixed at export, so only an
// override equal to it is accepted for the maximum.
func recognizerConfig(cfg config.Config, meta model.Metadata, logger *slog.Logger) (recognizer.Config, error) {
	rc := recognizer.ConfigFromMetadata(meta, cfg.Threshold)
	rc.Logger = logger
	if cfg.MinSeqLen > 0 {
		rc.MinSeqLen = cfg.MinSeqLen
	}
	if cfg.MaxSeqLen > 0 && cfg.MaxSeqLen != meta.MaxSeqLen {
		return recognizer.Config{}, fmt.Errorf("%s=%d does not match the model input length %d",
			config.EnvMaxSeqLen, cfg.MaxSeqLen, meta.MaxSeqLen)
	}
	if err := rc.Validate(); err != nil {
		return recognizer.Config{}, fmt.Errorf("invalid recognizer config: %w", err)
	}
	return rc, nil
}

// newCameraSource opens nothing yet: the camera is opened by whichever
// operation uses it. A positive motion threshold enables motion gating.
func newCameraSource(cfg config.Config, video string, motion float64, preview *capture.Preview, logger *slog.Logger) (*app.CameraSource, error) {
	camCfg := capture.DefaultConfig()
	camCfg.DeviceID = cfg.CameraID
	if video != "" {
		camCfg.File = video
		camCfg.Mirror = false
	}

	det, err := detector.NewMediaPipeDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	src, err := app.NewCameraSource(app.SourceConfig{
		Camera:          capture.NewCameraWithConfig(camCfg),
		Detector:        det,
		MotionThreshold: motion,
		Preview:         preview,
		Logger:          logger,
	})
	if err != nil {
		det.Close()
		return nil, err
	}
	return src, nil
}
