package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/recognizer"
)

func runTranslate(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("translate", env.cfg)
	video := fs.String("video", "", "recognize a video file instead of the camera")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	classifier, rc, closeClassifier, err := loadClassifier(ctx, env.cfg, repo, env.logger)
	if err != nil {
		return err
	}
	defer closeClassifier()
	if classifier == nil {
		return errors.New("translate: no model configured and no recorded actions to match")
	}

	motion := env.cfg.MotionThreshold
	if *video != "" {
		motion = 0
	}
	src, err := newCameraSource(env.cfg, *video, motion, nil, env.logger)
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{
		Repository: repo,
		Source:     src,
		Classifier: classifier,
		Recognizer: rc,
		PluginDir:  env.cfg.PluginsDir(),
		Logger:     env.logger,
	})
	if err != nil {
		src.Release()
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	a.Translator().Subscribe(func(d recognizer.Decision) {
		out.Encode(d)
	})

	if err := a.SetEnabled(true); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- a.Translator().Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		env.logger.Info("stopping translation")
		return a.SetEnabled(false)
	}
}
