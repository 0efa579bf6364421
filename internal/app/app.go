// Package app wires camera capture, landmark detection, the corpus, live
// recognition and plugins into the mudra application.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
)

var (
	// ErrNoCamera is returned for operations that need a camera when none is configured.
	ErrNoCamera = errors.New("no camera configured")
	// ErrNoClassifier is returned when translation is enabled without a classifier.
	ErrNoClassifier = errors.New("no classifier configured")
	// ErrBusy is returned when the camera is already used by another operation.
	ErrBusy = errors.New("camera is busy")
)

// Config holds configuration options for the application.
type Config struct {
	Repository corpus.Repository
	// Source is nil when no camera is available.
	Source *CameraSource
	// Classifier is nil when no model is loaded; translation is then unavailable.
	Classifier recognizer.Classifier
	Recognizer recognizer.Config

	PluginDir     string
	PluginTimeout time.Duration
	Logger        *slog.Logger
}

// App owns the camera source and decides whether it is used for recording
// repeats or for live translation.
type App struct {
	config     Config
	logger     *slog.Logger
	collector  *Collector
	translator *Translator
	plugins    *plugin.Manager
	dispatcher *plugin.Dispatcher

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	recording bool
}

// New creates an App. Call Start before enabling translation.
func New(config Config) (*App, error) {
	if config.Repository == nil {
		return nil, errors.New("app: nil repository")
	}

	a := &App{
		config:  config,
		logger:  logging.WithComponent(config.Logger, "app"),
		plugins: plugin.NewManager(config.PluginDir, config.Logger),
		ctx:     context.Background(),
	}
	a.dispatcher = plugin.NewDispatcher(a.plugins, plugin.NewExecutor(config.PluginTimeout), config.Logger)

	if config.Source != nil {
		a.collector = NewCollector(config.Repository, config.Source, config.Logger)
	}

	if config.Source != nil && config.Classifier != nil {
		t, err := NewTranslator(TranslatorConfig{
			Source:     config.Source,
			Classifier: config.Classifier,
			Recognizer: config.Recognizer,
			Dispatcher: a.dispatcher,
			OnStop: func(error) {
				if err := config.Source.Close(); err != nil {
					a.logger.Warn("error closing camera", "error", err)
				}
			},
			Logger: config.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.translator = t
	}

	return a, nil
}

// Start discovers plugins and starts plugin delivery. ctx bounds every
// background goroutine the app starts.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if err := a.plugins.Discover(); err != nil {
		return err
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.dispatcher.Start(a.ctx)

	a.logger.Info("application started",
		"plugins", len(a.plugins.List()),
		"camera", a.config.Source != nil,
		"translation", a.translator != nil)
	return nil
}

// SetEnabled starts or stops live translation.
func (a *App) SetEnabled(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !enabled {
		if a.translator == nil {
			return nil
		}
		return a.translator.Stop()
	}

	switch {
	case a.config.Source == nil:
		return ErrNoCamera
	case a.translator == nil:
		return ErrNoClassifier
	case a.recording:
		return ErrBusy
	case a.translator.Running():
		return nil
	}

	if err := a.config.Source.Open(); err != nil {
		return err
	}
	if err := a.translator.Start(a.ctx); err != nil {
		a.config.Source.Close()
		return err
	}
	return nil
}

// IsEnabled reports whether live translation is running.
func (a *App) IsEnabled() bool {
	return a.translator != nil && a.translator.Running()
}

// LastDecision returns the most recent recognized sign.
func (a *App) LastDecision() (recognizer.Decision, bool) {
	if a.translator == nil {
		return recognizer.Decision{}, false
	}
	return a.translator.Last()
}

// Record captures one repeat with the camera. It fails with ErrBusy while
// translation or another capture is running.
func (a *App) Record(ctx context.Context, s Session) (corpus.Key, error) {
	if a.collector == nil {
		return corpus.Key{}, ErrNoCamera
	}

	a.mu.Lock()
	if a.recording || a.IsEnabled() {
		a.mu.Unlock()
		return corpus.Key{}, ErrBusy
	}
	if err := a.config.Source.Open(); err != nil {
		a.mu.Unlock()
		return corpus.Key{}, err
	}
	a.recording = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.recording = false
		a.mu.Unlock()
		if err := a.config.Source.Close(); err != nil {
			a.logger.Warn("error closing camera", "error", err)
		}
	}()

	return a.collector.Record(ctx, s)
}

// Close stops translation and plugin delivery and releases the camera and
// detector.
func (a *App) Close() error {
	var err error
	if a.translator != nil {
		err = a.translator.Stop()
	}

	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		a.dispatcher.Wait()
	}

	if a.config.Source != nil {
		if rerr := a.config.Source.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// Repository returns the corpus.
func (a *App) Repository() corpus.Repository {
	return a.config.Repository
}

// Source returns the camera source, or nil.
func (a *App) Source() *CameraSource {
	return a.config.Source
}

// Translator returns the live translator, or nil without camera and classifier.
func (a *App) Translator() *Translator {
	return a.translator
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.plugins
}

// Dispatcher returns the plugin dispatcher.
func (a *App) Dispatcher() *plugin.Dispatcher {
	return a.dispatcher
}
