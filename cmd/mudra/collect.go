package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/app"
)

func runCollect(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("collect", env.cfg)
	action := fs.String("action", "", "action name (required)")
	repeats := fs.Int("repeats", 1, "number of repeats to record")
	frames := fs.Int("frames", app.DefaultSessionFrames, "frames per repeat")
	countdown := fs.Duration("countdown", 2*time.Second, "wait before each repeat")
	video := fs.String("video", "", "read frames from a video file instead of the camera")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" {
		return errors.New("collect: -action is required")
	}
	if *repeats < 1 {
		return errors.New("collect: -repeats must be at least 1")
	}

	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	// no motion gating: every frame of a repeat is kept
	src, err := newCameraSource(env.cfg, *video, 0, nil, env.logger)
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{
		Repository: repo,
		Source:     src,
		PluginDir:  env.cfg.PluginsDir(),
		Logger:     env.logger,
	})
	if err != nil {
		src.Release()
		return err
	}
	defer a.Close()

	for i := 0; i < *repeats; i++ {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("%s: repeat %d/%d, get ready...\n", *action, i+1, *repeats)

		key, err := a.Record(ctx, app.Session{
			Action:    *action,
			Frames:    *frames,
			Countdown: *countdown,
			OnFrame: func(n int) {
				if n%10 == 0 {
					fmt.Printf("  %d/%d frames\n", n, *frames)
				}
			},
		})
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			return fmt.Errorf("repeat %d: %w", i+1, err)
		}
		fmt.Printf("saved %s repeat %d (%s)\n", key.Action, key.Repeat, key.Location)
	}
	return nil
}
