package plugin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ayusman/mudra/internal/logging"
)

const defaultQueueSize = 32

// Dispatcher delivers sign events to subscribed plugins on a background
// goroutine so that slow plugins never hold up recognition. Events that
// arrive while the queue is full are dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *slog.Logger
	queue    chan Request

	mu      sync.Mutex
	dropped int
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before Submit.
func NewDispatcher(manager *Manager, executor *Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		logger:   logging.WithComponent(logger, "plugin-dispatch"),
		queue:    make(chan Request, defaultQueueSize),
	}
}

// Start processes queued events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.deliver(ctx, req)
			}
		}
	}()
}

// Wait blocks until the worker started by Start has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Submit queues an event without blocking.
func (d *Dispatcher) Submit(req Request) bool {
	if req.Event == "" {
		req.Event = EventSign
	}
	select {
	case d.queue <- req:
		return true
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn("plugin queue full, dropping event", "label", req.Label)
		return false
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Deliver runs every plugin subscribed to req.Label in name order and
// returns the responses of those that ran.
func (d *Dispatcher) Deliver(ctx context.Context, req Request) map[string]*Response {
	if req.Event == "" {
		req.Event = EventSign
	}
	return d.deliver(ctx, req)
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) map[string]*Response {
	out := make(map[string]*Response)
	for _, p := range d.manager.Subscribers(req.Label) {
		r := req
		resp, err := d.executor.Execute(ctx, p, &r)
		if err != nil {
			d.logger.Error("plugin execution failed", "plugin", p.Manifest.Name, "label", req.Label, "error", err)
			continue
		}
		if !resp.Success {
			d.logger.Warn("plugin reported failure", "plugin", p.Manifest.Name, "label", req.Label, "error", resp.Error)
		}
		out[p.Manifest.Name] = resp
	}
	return out
}
