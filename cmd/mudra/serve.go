package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/tray"
)

const previewQuality = 75

func runServe(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("serve", env.cfg)
	withTray := fs.Bool("tray", false, "show the system tray menu")
	noCamera := fs.Bool("no-camera", false, "serve the corpus API only")
	static := fs.String("static", "", "web UI directory (default: search web/ and ~/.mudra/web)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := env.logger
	logger.Info("starting mudra", "version", Version, "data_dir", env.cfg.DataDir, "backend", *backend)

	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	classifier, rc, closeClassifier, err := loadClassifier(ctx, env.cfg, repo, logger)
	if err != nil {
		return err
	}
	defer closeClassifier()

	preview := capture.NewPreview(previewQuality)
	var src *app.CameraSource
	if !*noCamera {
		src, err = newCameraSource(env.cfg, "", env.cfg.MotionThreshold, preview, logger)
		if err != nil {
			logger.Warn("camera unavailable, recording and translation disabled", "error", err)
			src = nil
		}
	}

	appCfg := app.Config{
		Repository: repo,
		PluginDir:  env.cfg.PluginsDir(),
		Logger:     logger,
	}
	if src != nil {
		appCfg.Source = src
	}
	if classifier != nil {
		appCfg.Classifier = classifier
		appCfg.Recognizer = rc
	}
	a, err := app.New(appCfg)
	if err != nil {
		if src != nil {
			src.Release()
		}
		return err
	}
	defer a.Close()
	if err := a.Start(ctx); err != nil {
		return err
	}

	hub := server.NewRecognitionHub(logger)
	defer hub.Close()

	var t *tray.Tray
	if *withTray {
		t = tray.New(false)
	}
	if tr := a.Translator(); tr != nil {
		tr.Subscribe(hub.Publish)
		if t != nil {
			tr.Subscribe(func(d recognizer.Decision) { t.SetLastSign(d.Label, d.Confidence) })
		}
	}

	srvCfg := server.Config{
		Addr:       fmt.Sprintf(":%d", env.cfg.Port),
		StaticDir:  *static,
		Repository: repo,
		Translator: a,
		Hub:        hub,
		Logger:     logger,
	}
	if srvCfg.StaticDir == "" {
		srvCfg.StaticDir = findWebDir(env.cfg.DataDir)
	}
	if src != nil {
		srvCfg.Preview = preview
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if t != nil {
		t.OnToggle(a.SetEnabled)
		t.OnOpen(func() {
			url := fmt.Sprintf("http://localhost:%d", env.cfg.Port)
			if err := openBrowser(url); err != nil {
				logger.Warn("failed to open browser", "url", url, "error", err)
			}
		})
		t.OnQuit(func() { logger.Info("quit requested from tray") })
		go func() {
			select {
			case <-ctx.Done():
				t.Quit()
			case <-errCh:
				t.Quit()
			}
		}()
		// blocks until Quit
		t.Run()
	} else {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openBrowser(url string) error {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	return exec.Command(name, url).Start()
}

// findWebDir searches web, ../web and <dataDir>/web. It returns "" when none
// exists.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
