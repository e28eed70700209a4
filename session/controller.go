package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-otaflash/bootloader"
	"github.com/moffa90/go-otaflash/firmware"
	"github.com/pkg/errors"
)

// ErrSessionActive is returned by Start while another session runs.
var ErrSessionActive = errors.New("a firmware update session is already active")

// Controller is the entry point for firmware updates. It runs at most one
// session at a time and fans its events out to the registered sinks.
type Controller struct {
	transport bootloader.Transport
	config    Config

	mu     sync.Mutex
	sinks  []Sink
	active *run
	last   *run
}

// run is one session. Its events are delivered by dispatch.
type run struct {
	id     uint64
	cancel context.CancelFunc
	events chan ProgressEvent
	done   chan struct{}

	dropped atomic.Int64
	result  Result
}

var runIDs atomic.Uint64

// New creates a Controller that transfers over transport.
//
// Example:
//
//	ctrl := session.New(link, session.WithLogger(logger))
//	ctrl.AddSink(session.SinkFuncs{
//	    Progress: func(ev session.ProgressEvent) { ... },
//	    Result:   func(r session.Result) { ... },
//	})
//	if err := ctrl.Start(firmware.FileSource("app.bin"), firmware.Primary); err != nil {
//	    return err
//	}
//	res := ctrl.Wait()
func New(transport bootloader.Transport, opts ...Option) *Controller {
	if transport == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Controller{
		transport: transport,
		config:    cfg,
	}
}

// AddSink registers s for the events of sessions started afterwards.
func (c *Controller) AddSink(s Sink) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Start begins a session that loads src and transfers it as kind. It returns
// ErrSessionActive, leaving the running session untouched, if one is active.
func (c *Controller) Start(src firmware.Source, kind firmware.Kind) error {
	if src == nil {
		return errors.New("firmware source cannot be nil")
	}

	c.mu.Lock()
	if c.active != nil {
		id := c.active.id
		c.mu.Unlock()
		c.logWarn("start rejected, session active", "session", id)
		return ErrSessionActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     runIDs.Add(1),
		cancel: cancel,
		events: make(chan ProgressEvent, c.config.EventQueueSize),
		done:   make(chan struct{}),
	}
	sinks := append([]Sink(nil), c.sinks...)
	c.active = r
	c.last = r
	c.mu.Unlock()

	c.logInfo("session started", "session", r.id, "kind", kind.String())

	go r.dispatch(sinks)
	go c.execute(ctx, r, src, kind)
	return nil
}

// Cancel requests cancellation of the active session and returns without
// waiting for it to stop. The session stays active until its transfer has
// unwound; call Wait before starting the next one. Cancel is a no-op when no
// session is active and may be called any number of times.
func (c *Controller) Cancel() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()

	if r == nil {
		return
	}
	c.logInfo("session cancel requested", "session", r.id)
	r.cancel()
}

// IsActive reports whether a session is running. A cancelled session counts
// as running until Wait would return.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Wait blocks until the most recently started session has delivered its
// result and returns it. It returns a zero Result if no session was started.
func (c *Controller) Wait() Result {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()

	if r == nil {
		return Result{}
	}
	<-r.done
	return r.result
}

// execute runs the transfer on its own goroutine. The session becomes
// inactive before its result is delivered, so a sink may start the next one.
func (c *Controller) execute(ctx context.Context, r *run, src firmware.Source, kind firmware.Kind) {
	start := time.Now()
	defer r.cancel()

	err := c.transfer(ctx, r, src, kind)
	r.result = newResult(err, time.Since(start))

	if n := r.dropped.Load(); n > 0 {
		c.logDebug("progress events dropped", "session", r.id, "count", n)
	}
	c.logInfo("session finished",
		"session", r.id,
		"success", r.result.Success,
		"cancelled", r.result.Cancelled,
		"elapsed", r.result.Elapsed.String(),
	)

	c.mu.Lock()
	if c.active == r {
		c.active = nil
	}
	c.mu.Unlock()

	close(r.events)
}

func (c *Controller) transfer(ctx context.Context, r *run, src firmware.Source, kind firmware.Kind) error {
	image, err := src.Load()
	if err != nil {
		return errors.Wrap(err, "load firmware")
	}
	if err := ctx.Err(); err != nil {
		return &bootloader.CancelledError{Err: err}
	}

	opts := append([]bootloader.Option(nil), c.config.ProgrammerOptions...)
	if c.config.Logger != nil {
		opts = append(opts, bootloader.WithLogger(c.config.Logger))
	}
	opts = append(opts, bootloader.WithProgressCallback(r.publish))

	prog := bootloader.New(c.transport, opts...)
	return prog.Program(ctx, image, kind)
}

// publish queues a progress event without blocking the transfer.
func (r *run) publish(p bootloader.Progress) {
	select {
	case r.events <- newProgressEvent(p):
	default:
		r.dropped.Add(1)
	}
}

// dispatch delivers queued progress events, then the result.
func (r *run) dispatch(sinks []Sink) {
	defer close(r.done)

	for ev := range r.events {
		for _, s := range sinks {
			s.OnProgress(ev)
		}
	}
	for _, s := range sinks {
		s.OnResult(r.result)
	}
}

func newResult(err error, elapsed time.Duration) Result {
	res := Result{Err: err, Elapsed: elapsed}
	switch {
	case err == nil:
		res.Success = true
		res.Message = "Firmware update complete"
	case errors.Is(err, bootloader.ErrCancelled):
		res.Cancelled = true
		res.Message = "Firmware update cancelled"
	default:
		res.Message = fmt.Sprintf("Firmware update failed: %v", err)
	}
	return res
}

func (c *Controller) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Warn(msg, keysAndValues...)
	}
}
