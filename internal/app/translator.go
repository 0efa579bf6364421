package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
)

// TranslatorConfig configures a Translator.
type TranslatorConfig struct {
	Source     recognizer.FrameSource
	Classifier recognizer.Classifier
	Recognizer recognizer.Config
	// Dispatcher, when set, receives every emitted sign.
	Dispatcher *plugin.Dispatcher
	// OnStop is called when a run ends, for whatever reason.
	OnStop func(err error)
	Logger *slog.Logger
}

// Translator runs live recognition on a background goroutine and fans the
// emitted signs out to listeners and plugins. Every Start begins with an
// empty buffer.
type Translator struct {
	cfg    TranslatorConfig
	logger *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	last      *recognizer.Decision
	listeners map[int]func(recognizer.Decision)
	nextID    int
}

// NewTranslator validates cfg and returns a stopped translator.
func NewTranslator(cfg TranslatorConfig) (*Translator, error) {
	if cfg.Source == nil {
		return nil, errors.New("translator: nil source")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("translator: nil classifier")
	}
	if cfg.Recognizer.Logger == nil {
		cfg.Recognizer.Logger = cfg.Logger
	}
	if err := cfg.Recognizer.Validate(); err != nil {
		return nil, err
	}
	return &Translator{
		cfg:       cfg,
		logger:    logging.WithComponent(cfg.Logger, "translator"),
		listeners: make(map[int]func(recognizer.Decision)),
	}, nil
}

// Start begins recognition. Starting a running translator does nothing.
// The run stops when ctx is done, Stop is called or the source ends.
func (t *Translator) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}

	r, err := recognizer.New(t.cfg.Recognizer, t.cfg.Classifier)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.err = nil

	go func() {
		defer close(done)
		err := r.Run(runCtx, t.cfg.Source, t.emit)
		cancel()
		if err != nil {
			t.logger.Error("recognition stopped", "error", err)
		} else {
			t.logger.Info("recognition stopped")
		}

		t.mu.Lock()
		t.err = err
		if t.done == done {
			t.cancel = nil
		}
		t.mu.Unlock()

		if t.cfg.OnStop != nil {
			t.cfg.OnStop(err)
		}
	}()

	t.logger.Info("recognition started",
		"min_seq_len", t.cfg.Recognizer.MinSeqLen,
		"max_seq_len", t.cfg.Recognizer.MaxSeqLen,
		"threshold", t.cfg.Recognizer.Threshold)
	return nil
}

// Stop ends the current run, waits for its final attempt and returns the
// run's error.
func (t *Translator) Stop() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return t.Err()
}

// Wait blocks until the current run ends and returns its error.
func (t *Translator) Wait() error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}
	return t.Err()
}

// Running reports whether a run is in progress.
func (t *Translator) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Err returns the error of the last finished run.
func (t *Translator) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Last returns the most recently emitted decision.
func (t *Translator) Last() (recognizer.Decision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return recognizer.Decision{}, false
	}
	return *t.last, true
}

// Subscribe registers fn for every emitted decision. fn runs on the
// recognition goroutine and must not block.
func (t *Translator) Subscribe(fn func(recognizer.Decision)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Translator) emit(d recognizer.Decision) {
	t.mu.Lock()
	t.last = &d
	fns := make([]func(recognizer.Decision), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	t.logger.Info("sign recognized",
		"label", d.Label,
		"confidence", d.Confidence,
		"frames", d.Frames,
		"state", d.State,
		"final", d.Final)

	for _, fn := range fns {
		fn(d)
	}

	if t.cfg.Dispatcher != nil {
		t.cfg.Dispatcher.Submit(plugin.Request{
			Event:      plugin.EventSign,
			Label:      d.Label,
			Confidence: d.Confidence,
			Frames:     d.Frames,
			Final:      d.Final,
			Timestamp:  d.Time,
		})
	}
}
